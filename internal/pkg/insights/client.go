package insights

import (
	"Cadence/internal/api/config"
	"Cadence/internal/model"
	"Cadence/internal/pkg/logger"
	"Cadence/internal/pkg/metrics"
	"Cadence/internal/pkg/resilience"
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

var (
	// ErrUnavailable 帖子列表拉取失败(重试后仍失败)
	ErrUnavailable = errors.New("insights source unavailable")
	// errClient 4xx 不重试
	errClient = errors.New("insights client error")
)

type postItem struct {
	ID       string    `json:"id"`
	PostedAt time.Time `json:"posted_at"`
}

type listResponse struct {
	Data []postItem `json:"data"`
}

type insightResponse struct {
	Impressions int64 `json:"impressions"`
	Reach       int64 `json:"reach"`
	Likes       int64 `json:"likes"`
	Comments    int64 `json:"comments"`
}

// Client 平台数据网关客户端
type Client struct {
	http    *resty.Client
	policy  resilience.Policy
	limiter *rate.Limiter
	sem     *semaphore.Weighted
}

func NewClient(cfg config.InsightsConfig) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	concurrency := int64(cfg.MaxConcurrency)
	if concurrency <= 0 {
		concurrency = 4
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetTransport(&logger.HTTPTransport{Name: "INSIGHTS"}).
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal).
		SetHeader("Accept", "application/json")
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}

	policy := resilience.DefaultPolicy()
	policy.MaxRetries = cfg.MaxRetries
	policy.AttemptTimeout = timeout
	policy.NonRetryable = []error{errClient}

	return &Client{
		http:    client,
		policy:  policy,
		limiter: rate.NewLimiter(limit, int(concurrency)),
		sem:     semaphore.NewWeighted(concurrency),
	}
}

// FetchRecentPosts 拉取最近 count 条帖子及其表现数据
// 列表失败整体返回 ErrUnavailable；单条数据失败以零值代替并记录日志
func (c *Client) FetchRecentPosts(ctx context.Context, platform string, count int) ([]*model.EngagementSample, error) {
	posts, err := resilience.Do(ctx, c.policy, func(ctx context.Context) ([]postItem, error) {
		return c.listPosts(ctx, platform, count)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, platform, err)
	}
	if len(posts) > count {
		posts = posts[:count]
	}

	samples := make([]*model.EngagementSample, len(posts))
	var g errgroup.Group
	for i, post := range posts {
		if err = c.sem.Acquire(ctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer c.sem.Release(1)
			samples[i] = c.sampleFor(ctx, platform, post)
			return nil
		})
	}
	_ = g.Wait()
	if err != nil {
		return nil, err
	}

	log.InfoContext(ctx, "fetched recent posts", "platform", platform, "requested", count, "received", len(samples))
	return samples, nil
}

func (c *Client) listPosts(ctx context.Context, platform string, count int) ([]postItem, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var out listResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("platform", platform).
		SetQueryParam("limit", strconv.Itoa(count)).
		SetResult(&out).
		Get("/v1/{platform}/posts")
	if err != nil {
		return nil, err
	}
	if err = statusError(resp); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *Client) sampleFor(ctx context.Context, platform string, post postItem) *model.EngagementSample {
	sample := &model.EngagementSample{
		PostID:   post.ID,
		Platform: platform,
		PostedAt: post.PostedAt,
	}

	metricsResp, err := resilience.Do(ctx, c.policy, func(ctx context.Context) (*insightResponse, error) {
		return c.postInsight(ctx, platform, post.ID)
	})
	if err != nil {
		metrics.InsightMisses.WithLabelValues(platform).Inc()
		log.WarnContext(ctx, "post insight unavailable, using zero metrics",
			"platform", platform, "post_id", post.ID, "err", err)
		return sample
	}

	sample.Impressions = metricsResp.Impressions
	sample.Reach = metricsResp.Reach
	sample.Likes = metricsResp.Likes
	sample.Comments = metricsResp.Comments
	return sample
}

func (c *Client) postInsight(ctx context.Context, platform, postID string) (*insightResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var out insightResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"platform": platform, "id": postID}).
		SetResult(&out).
		Get("/v1/{platform}/posts/{id}/insights")
	if err != nil {
		return nil, err
	}
	if err = statusError(resp); err != nil {
		return nil, err
	}
	return &out, nil
}

func statusError(resp *resty.Response) error {
	code := resp.StatusCode()
	switch {
	case code >= 500 || code == 429:
		return fmt.Errorf("insights status %d", code)
	case code >= 400:
		return fmt.Errorf("%w: status %d", errClient, code)
	}
	return nil
}
