package service

import (
	"Cadence/internal/model"
	"Cadence/internal/pkg/consts"
)

// ScoreProfile 平台评分权重，每一项先按上限归一化再加权
type ScoreProfile struct {
	LikeRateWeight float64
	LikeRateCap    float64
	CommentWeight  float64
	CommentCap     float64
	ReachWeight    float64
	ReachCap       float64
}

// ScoreFunc 把单条样本换算成 [0, 100] 的互动得分
type ScoreFunc func(platform string, sample *model.EngagementSample) float64

var scoreProfiles = map[string]ScoreProfile{
	consts.PlatformInstagram: {
		LikeRateWeight: 0.5, LikeRateCap: 0.10,
		CommentWeight: 0.3, CommentCap: 50,
		ReachWeight: 0.2, ReachCap: 10000,
	},
	consts.PlatformFacebook: {
		LikeRateWeight: 0.4, LikeRateCap: 0.05,
		CommentWeight: 0.3, CommentCap: 30,
		ReachWeight: 0.3, ReachCap: 5000,
	},
}

// ProfileFor 未知平台沿用 facebook 权重
func ProfileFor(platform string) ScoreProfile {
	if p, ok := scoreProfiles[platform]; ok {
		return p
	}
	return scoreProfiles[consts.PlatformFacebook]
}

// EngagementScore 默认评分：点赞/展示比、评论数、触达人数三项加权
// 展示为 0 时点赞率一项记 0，触达只参与触达一项
func EngagementScore(platform string, sample *model.EngagementSample) float64 {
	if sample == nil {
		return 0
	}
	p := ProfileFor(platform)

	var likeRate float64
	if sample.Impressions > 0 {
		likeRate = float64(sample.Likes) / float64(sample.Impressions)
	}

	score := component(likeRate, p.LikeRateCap, p.LikeRateWeight) +
		component(float64(sample.Comments), p.CommentCap, p.CommentWeight) +
		component(float64(sample.Reach), p.ReachCap, p.ReachWeight)

	return clampScore(score)
}

func component(value, cap, weight float64) float64 {
	if cap <= 0 || value <= 0 {
		return 0
	}
	ratio := value / cap
	if ratio > 1 {
		ratio = 1
	}
	return ratio * 100 * weight
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
