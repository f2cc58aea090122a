// Package catalog registers the concrete brand-intelligence tools against
// a tools.Registry. Only the uniform contract (validator, cache wiring,
// result shape) is specified in depth, per spec.md's scope note that
// individual tools' internal algorithms are not part of the core.
// Grounded on the teacher's MCP tool-tier taxonomy
// (internal/mcp/tools/taxonomy.go, internal/mcp/tools/*) for the
// validator/handler split, generalized from Kubernetes resources to
// brand-intelligence entities (profiles, posts, reels, hashtags).
package catalog

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kubilitics/kubilitics-ai/internal/actor"
	"github.com/kubilitics/kubilitics-ai/internal/apperr"
	"github.com/kubilitics/kubilitics-ai/internal/cache"
	"github.com/kubilitics/kubilitics-ai/internal/tools"
)

// Deps are the external collaborators tool handlers are allowed to call —
// the actor client and the cache, per spec §1's scope boundary. Nothing
// else (no direct HTTP, no direct store access) is wired into a handler.
type Deps struct {
	Actor actor.Client
	Cache cache.ReadThrough
}

// Register wires every catalog tool into r.
func Register(r *tools.Registry, deps Deps) {
	registerGetProfile(r, deps)
	registerGetPosts(r, deps)
	registerGetReels(r, deps)
	registerGetHashtagPosts(r, deps)
	registerGetHashtagStats(r, deps)
	registerCheckUserTopicPosts(r, deps)
	registerScoreEngagement(r, deps)
	registerRankInfluencers(r, deps)
	registerMonitorPost(r, deps)
}

// ─── get_profile ─────────────────────────────────────────────────────────

type getProfileArgs struct {
	Username string
}

func validateUsername(raw map[string]any) (getProfileArgs, error) {
	username, ok := tools.AsString(raw["username"])
	if !ok || username == "" {
		return getProfileArgs{}, fmt.Errorf("username is required")
	}
	return getProfileArgs{Username: username}, nil
}

func registerGetProfile(r *tools.Registry, deps Deps) {
	tools.Register(r, tools.Spec{
		Name:        "get_profile",
		Label:       "Fetching profile",
		Description: "Fetch a creator or brand profile",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"username": map[string]any{"type": "string"}},
			"required":   []string{"username"},
		},
	}, validateUsername, func(ctx context.Context, in getProfileArgs) (map[string]any, error) {
		if payload, hit, err := deps.Cache.Read(ctx, cache.KindProfile, in.Username); err != nil {
			return nil, err
		} else if hit {
			return cache.WithCacheHit(payload, true), nil
		}

		items, err := deps.Actor.Run(ctx, "profile-scraper", map[string]any{"username": in.Username}, actor.RunLimits{MaxItems: 1})
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return nil, apperr.NotFound("profile %q not found", in.Username)
		}

		payload := map[string]any{"profile": items[0], "username": in.Username}
		deps.Cache.Write(ctx, cache.KindProfile, in.Username, payload)
		return cache.WithCacheHit(payload, false), nil
	})
}

// ─── get_posts / get_reels ───────────────────────────────────────────────

type listArgs struct {
	Username string
	Limit    int
}

func validateUsernameLimit(raw map[string]any) (listArgs, error) {
	username, ok := tools.AsString(raw["username"])
	if !ok || username == "" {
		return listArgs{}, fmt.Errorf("username is required")
	}
	limit := 20
	if v, present := raw["limit"]; present {
		n, ok := tools.AsInt(v)
		if !ok || n <= 0 {
			return listArgs{}, fmt.Errorf("limit must be a positive integer")
		}
		limit = n
	}
	return listArgs{Username: username, Limit: limit}, nil
}

func registerGetPosts(r *tools.Registry, deps Deps) {
	registerMediaList(r, deps, "get_posts", "Fetching posts", "post-scraper", cache.KindPost, "posts")
}

func registerGetReels(r *tools.Registry, deps Deps) {
	registerMediaList(r, deps, "get_reels", "Fetching reels", "reel-scraper", cache.KindReel, "reels")
}

func registerMediaList(r *tools.Registry, deps Deps, name, label, actorID string, kind cache.Kind, field string) {
	tools.Register(r, tools.Spec{
		Name:        name,
		Label:       label,
		Description: fmt.Sprintf("Fetch recent %s for a username", field),
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"username": map[string]any{"type": "string"},
				"limit":    map[string]any{"type": "integer"},
			},
			"required": []string{"username"},
		},
	}, validateUsernameLimit, func(ctx context.Context, in listArgs) (map[string]any, error) {
		key := fmt.Sprintf("%s:%d", in.Username, in.Limit)
		if payload, hit, err := deps.Cache.Read(ctx, kind, key); err != nil {
			return nil, err
		} else if hit {
			return cache.WithCacheHit(payload, true), nil
		}

		items, err := deps.Actor.Run(ctx, actorID, map[string]any{"username": in.Username}, actor.RunLimits{MaxItems: in.Limit})
		if err != nil {
			return nil, err
		}

		payload := map[string]any{field: items, "totalFetched": len(items)}
		deps.Cache.Write(ctx, kind, key, payload)
		return cache.WithCacheHit(payload, false), nil
	})
}

// ─── get_hashtag_posts / get_hashtag_stats ───────────────────────────────

type hashtagArgs struct {
	Hashtag string
	Limit   int
}

func validateHashtagLimit(raw map[string]any) (hashtagArgs, error) {
	tag, ok := tools.AsString(raw["hashtag"])
	if !ok || tag == "" {
		return hashtagArgs{}, fmt.Errorf("hashtag is required")
	}
	limit := 30
	if v, present := raw["limit"]; present {
		n, ok := tools.AsInt(v)
		if !ok || n <= 0 {
			return hashtagArgs{}, fmt.Errorf("limit must be a positive integer")
		}
		limit = n
	}
	return hashtagArgs{Hashtag: tag, Limit: limit}, nil
}

func validateHashtag(raw map[string]any) (hashtagArgs, error) {
	tag, ok := tools.AsString(raw["hashtag"])
	if !ok || tag == "" {
		return hashtagArgs{}, fmt.Errorf("hashtag is required")
	}
	return hashtagArgs{Hashtag: tag}, nil
}

func registerGetHashtagPosts(r *tools.Registry, deps Deps) {
	tools.Register(r, tools.Spec{
		Name:        "get_hashtag_posts",
		Label:       "Scanning hashtag posts",
		Description: "Fetch recent posts under a hashtag",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"hashtag": map[string]any{"type": "string"},
				"limit":   map[string]any{"type": "integer"},
			},
			"required": []string{"hashtag"},
		},
	}, validateHashtagLimit, func(ctx context.Context, in hashtagArgs) (map[string]any, error) {
		key := fmt.Sprintf("%s:%d", in.Hashtag, in.Limit)
		if payload, hit, err := deps.Cache.Read(ctx, cache.KindHashtagPost, key); err != nil {
			return nil, err
		} else if hit {
			return cache.WithCacheHit(payload, true), nil
		}

		items, err := deps.Actor.Run(ctx, "hashtag-scraper", map[string]any{"hashtag": in.Hashtag}, actor.RunLimits{MaxItems: in.Limit})
		if err != nil {
			return nil, err
		}

		payload := map[string]any{"posts": items, "totalFetched": len(items)}
		deps.Cache.Write(ctx, cache.KindHashtagPost, key, payload)
		return cache.WithCacheHit(payload, false), nil
	})
}

func registerGetHashtagStats(r *tools.Registry, deps Deps) {
	tools.Register(r, tools.Spec{
		Name:        "get_hashtag_stats",
		Label:       "Fetching hashtag stats",
		Description: "Fetch aggregate metadata for a hashtag (post count, top posts)",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"hashtag": map[string]any{"type": "string"}},
			"required":   []string{"hashtag"},
		},
	}, validateHashtag, func(ctx context.Context, in hashtagArgs) (map[string]any, error) {
		if payload, hit, err := deps.Cache.Read(ctx, cache.KindHashtagMeta, in.Hashtag); err != nil {
			return nil, err
		} else if hit {
			return cache.WithCacheHit(payload, true), nil
		}

		items, err := deps.Actor.Run(ctx, "hashtag-meta-scraper", map[string]any{"hashtag": in.Hashtag}, actor.RunLimits{MaxItems: 1})
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return nil, apperr.NotFound("hashtag %q not found", in.Hashtag)
		}

		payload := map[string]any{"meta": items[0]}
		deps.Cache.Write(ctx, cache.KindHashtagMeta, in.Hashtag, payload)
		return cache.WithCacheHit(payload, false), nil
	})
}

// ─── check_user_topic_posts ──────────────────────────────────────────────
// Named in spec.md scenario S3: batched when called ×N with distinct
// usernames in the same turn.

type topicArgs struct {
	Username string
	Topic    string
}

func validateUsernameTopic(raw map[string]any) (topicArgs, error) {
	username, ok := tools.AsString(raw["username"])
	if !ok || username == "" {
		return topicArgs{}, fmt.Errorf("username is required")
	}
	topic, _ := tools.AsString(raw["topic"])
	return topicArgs{Username: username, Topic: topic}, nil
}

func registerCheckUserTopicPosts(r *tools.Registry, deps Deps) {
	tools.Register(r, tools.Spec{
		Name:        "check_user_topic_posts",
		Label:       "Scanning creator content",
		Description: "Check whether a creator has posted about a topic recently",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"username": map[string]any{"type": "string"},
				"topic":    map[string]any{"type": "string"},
			},
			"required": []string{"username"},
		},
	}, validateUsernameTopic, func(ctx context.Context, in topicArgs) (map[string]any, error) {
		key := fmt.Sprintf("%s:topic", in.Username)
		var posts []actor.RawItem
		hit := false
		if payload, found, err := deps.Cache.Read(ctx, cache.KindPost, key); err != nil {
			return nil, err
		} else if found {
			hit = true
			if raw, ok := payload["posts"].([]actor.RawItem); ok {
				posts = raw
			}
		}
		if !hit {
			items, err := deps.Actor.Run(ctx, "post-scraper", map[string]any{"username": in.Username}, actor.RunLimits{MaxItems: 20})
			if err != nil {
				return nil, err
			}
			posts = items
			deps.Cache.Write(ctx, cache.KindPost, key, map[string]any{"posts": posts})
		}

		matches := 0
		for _, p := range posts {
			if caption, ok := p["caption"].(string); ok && in.Topic != "" && containsFold(caption, in.Topic) {
				matches++
			}
		}

		payload := map[string]any{
			"username":     in.Username,
			"topic":        in.Topic,
			"matchCount":   matches,
			"totalFetched": len(posts),
		}
		return cache.WithCacheHit(payload, hit), nil
	})
}

func containsFold(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	hl, nl := []rune(haystack), []rune(needle)
	toLower := func(rs []rune) []rune {
		out := make([]rune, len(rs))
		for i, r := range rs {
			if r >= 'A' && r <= 'Z' {
				r += 'a' - 'A'
			}
			out[i] = r
		}
		return out
	}
	hl, nl = toLower(hl), toLower(nl)
	if len(nl) == 0 || len(nl) > len(hl) {
		return false
	}
	for i := 0; i+len(nl) <= len(hl); i++ {
		match := true
		for j := range nl {
			if hl[i+j] != nl[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// ─── score_engagement / rank_influencers ─────────────────────────────────
// Analytics aggregations over already-cached documents; no upstream actor
// call (spec §1: "individual tool business logic ... not part of the
// core" — these stay intentionally simple).

func registerScoreEngagement(r *tools.Registry, deps Deps) {
	tools.Register(r, tools.Spec{
		Name:        "score_engagement",
		Label:       "Scoring engagement",
		Description: "Compute an engagement score for a profile from its cached posts",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"username": map[string]any{"type": "string"}},
			"required":   []string{"username"},
		},
	}, validateUsername, func(ctx context.Context, in getProfileArgs) (map[string]any, error) {
		payload, hit, err := deps.Cache.Read(ctx, cache.KindPost, in.Username+":20")
		if err != nil {
			return nil, err
		}
		if !hit {
			return nil, apperr.NotFound("no cached posts for %q; call get_posts first", in.Username)
		}

		posts, _ := payload["posts"].([]actor.RawItem)
		score, sampleSize := engagementScore(posts)
		return map[string]any{
			"username":   in.Username,
			"score":      score,
			"sampleSize": sampleSize,
			"cacheHit":   true,
		}, nil
	})
}

func engagementScore(posts []actor.RawItem) (float64, int) {
	if len(posts) == 0 {
		return 0, 0
	}
	var total float64
	for _, p := range posts {
		likes, _ := p["likes"].(float64)
		comments, _ := p["comments"].(float64)
		total += likes + comments*2
	}
	return total / float64(len(posts)), len(posts)
}

type rankArgs struct {
	Hashtag string
	Limit   int
}

func registerRankInfluencers(r *tools.Registry, deps Deps) {
	tools.Register(r, tools.Spec{
		Name:        "rank_influencers",
		Label:       "Ranking influencers",
		Description: "Rank creators posting under a hashtag by engagement",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"hashtag": map[string]any{"type": "string"},
				"limit":   map[string]any{"type": "integer"},
			},
			"required": []string{"hashtag"},
		},
	}, func(raw map[string]any) (rankArgs, error) {
		args, err := validateHashtagLimit(raw)
		if err != nil {
			return rankArgs{}, err
		}
		if args.Limit > 50 {
			args.Limit = 50
		}
		return rankArgs{Hashtag: args.Hashtag, Limit: args.Limit}, nil
	}, func(ctx context.Context, in rankArgs) (map[string]any, error) {
		key := fmt.Sprintf("%s:%d", in.Hashtag, 30)
		payload, hit, err := deps.Cache.Read(ctx, cache.KindHashtagPost, key)
		if err != nil {
			return nil, err
		}
		if !hit {
			return nil, apperr.NotFound("no cached posts for #%s; call get_hashtag_posts first", in.Hashtag)
		}

		posts, _ := payload["posts"].([]actor.RawItem)
		byUser := make(map[string][]actor.RawItem)
		for _, p := range posts {
			if username, ok := p["username"].(string); ok {
				byUser[username] = append(byUser[username], p)
			}
		}

		type ranked struct {
			Username string  `json:"username"`
			Score    float64 `json:"score"`
		}
		results := make([]ranked, 0, len(byUser))
		for username, userPosts := range byUser {
			score, _ := engagementScore(userPosts)
			results = append(results, ranked{Username: username, Score: score})
		}
		sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
		if len(results) > in.Limit {
			results = results[:in.Limit]
		}

		out := make([]map[string]any, len(results))
		for i, r := range results {
			out[i] = map[string]any{"username": r.Username, "score": r.Score}
		}
		return map[string]any{"results": out, "cacheHit": true}, nil
	})
}

// ─── monitor_post ─────────────────────────────────────────────────────────
// Invoked by the scheduler (internal/scheduler), not the LLM, but still
// goes through the same dispatcher so its ToolCallInfo audit entry is
// uniform (spec §4.C10).

type monitorArgs struct {
	PostID string
}

func registerMonitorPost(r *tools.Registry, deps Deps) {
	tools.Register(r, tools.Spec{
		Name:        "monitor_post",
		Label:       "Monitoring post",
		Description: "Refresh the cached snapshot of a tracked post",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"postId": map[string]any{"type": "string"}},
			"required":   []string{"postId"},
		},
	}, func(raw map[string]any) (monitorArgs, error) {
		postID, ok := tools.AsString(raw["postId"])
		if !ok || postID == "" {
			return monitorArgs{}, fmt.Errorf("postId is required")
		}
		return monitorArgs{PostID: postID}, nil
	}, func(ctx context.Context, in monitorArgs) (map[string]any, error) {
		items, err := deps.Actor.Run(ctx, "post-snapshot-scraper", map[string]any{"postId": in.PostID}, actor.RunLimits{MaxItems: 1, Timeout: 30 * time.Second})
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return nil, apperr.NotFound("post %q not found", in.PostID)
		}
		payload := map[string]any{"snapshot": items[0]}
		deps.Cache.Write(ctx, cache.KindSnapshotHistory, in.PostID, payload)
		return cache.WithCacheHit(payload, false), nil
	})
}
