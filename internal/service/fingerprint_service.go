package service

import (
	"Cadence/internal/model"
	"Cadence/internal/pkg/minio"
	"Cadence/internal/pkg/resilience"
	"Cadence/internal/repository"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"math"
	"path"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

const (
	// sampleWindow 首尾各取的最大字节数
	sampleWindow = 64 * 1024
	// exactMatchConfidence 哈希完全一致
	exactMatchConfidence = 100.0
	// sizeMatchCeiling 大小近似时的置信度上限
	sizeMatchCeiling = 90.0
	// sizeMatchThreshold 大于该置信度才算命中
	sizeMatchThreshold = 70.0
)

// 上传工具常见的时间戳前缀：1712345678_、20240301_101500-、20240301101500 等
var timestampPrefix = regexp.MustCompile(`^(\d{10,14}|\d{8}[_-]?\d{6})[\s._-]+`)

// MatchResult 两个指纹的比较结果
type MatchResult struct {
	IsMatch    bool    `json:"is_match"`
	Confidence float64 `json:"confidence"`
}

// DuplicateResult 近期重复检测结果
type DuplicateResult struct {
	IsDuplicate       bool           `json:"is_duplicate"`
	DaysSinceLastPost int            `json:"days_since_last_post"`
	Confidence        float64        `json:"confidence"`
	MatchedContent    *model.Content `json:"matched_content,omitempty"`
}

// MediaSource 媒体原件读取
type MediaSource interface {
	Open(ctx context.Context, objectKey string) (minio.ObjectReader, int64, error)
	PresignedURL(ctx context.Context, objectKey string) (string, error)
}

// DurationProbe 探测媒体时长(秒)
type DurationProbe func(ctx context.Context, mediaURL string) (float64, error)

type FingerprintService interface {
	Fingerprint(blob []byte, declaredName string) model.ContentFingerprint
	FingerprintReader(r io.ReaderAt, size int64, declaredName string) (model.ContentFingerprint, error)
	FingerprintObject(ctx context.Context, objectKey, declaredName string) (model.ContentFingerprint, error)
	Compare(a, b model.ContentFingerprint) MatchResult
	FindRecentDuplicate(ctx context.Context, fp model.ContentFingerprint, minDays int, excludeContentID uint64) (*DuplicateResult, error)
	CheckContent(ctx context.Context, contentID uint64, minDays int) (*DuplicateResult, error)
}

type fingerprintServiceImpl struct {
	contentRepo repository.ContentRepo
	media       MediaSource
	probe       DurationProbe
	tolerance   float64
	policy      resilience.Policy
	now         func() time.Time
}

type FingerprintOption func(*fingerprintServiceImpl)

// WithMediaSource 启用按对象键计算指纹，probe 可为 nil
func WithMediaSource(media MediaSource, probe DurationProbe) FingerprintOption {
	return func(s *fingerprintServiceImpl) {
		s.media = media
		s.probe = probe
	}
}

func WithFingerprintClock(now func() time.Time) FingerprintOption {
	return func(s *fingerprintServiceImpl) {
		s.now = now
	}
}

// NewFingerprintService tolerancePct 为大小容差百分比，如 2 表示 2%
func NewFingerprintService(contentRepo repository.ContentRepo, tolerancePct float64, policy resilience.Policy, opts ...FingerprintOption) FingerprintService {
	if tolerancePct <= 0 {
		tolerancePct = 2
	}
	if tolerancePct > 50 {
		tolerancePct = 50
	}
	s := &fingerprintServiceImpl{
		contentRepo: contentRepo,
		tolerance:   tolerancePct / 100,
		policy:      policy,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NormalizeName 去掉目录、扩展名与时间戳前缀并转小写
func NormalizeName(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if name == "" {
		return ""
	}
	base := path.Base(name)
	if base == "." || base == "/" {
		return ""
	}
	base = strings.TrimSuffix(base, path.Ext(base))
	base = timestampPrefix.ReplaceAllString(base, "")
	return strings.ToLower(strings.TrimSpace(base))
}

func windowSize(size int64) int64 {
	n := size / 4
	if n > sampleWindow {
		n = sampleWindow
	}
	return n
}

func digest(head, tail []byte, size int64, name string) []byte {
	h, _ := blake2b.New256(nil)
	h.Write(head)
	h.Write(tail)
	var sizeBuf [8]byte
	binary.BigEndian.PutUint64(sizeBuf[:], uint64(size))
	h.Write(sizeBuf[:])
	h.Write([]byte(NormalizeName(name)))
	return h.Sum(nil)
}

// Fingerprint 对内存中的完整内容计算指纹，不会失败
func (s *fingerprintServiceImpl) Fingerprint(blob []byte, declaredName string) model.ContentFingerprint {
	size := int64(len(blob))
	n := windowSize(size)
	return model.ContentFingerprint{
		Hash:      digest(blob[:n], blob[size-n:], size, declaredName),
		SizeBytes: size,
	}
}

// FingerprintReader 只读取首尾分段，结果与 Fingerprint 一致
func (s *fingerprintServiceImpl) FingerprintReader(r io.ReaderAt, size int64, declaredName string) (model.ContentFingerprint, error) {
	if size < 0 {
		return model.ContentFingerprint{}, ErrParamInvalid
	}
	n := windowSize(size)
	head := make([]byte, n)
	tail := make([]byte, n)
	if err := readFullAt(r, head, 0); err != nil {
		return model.ContentFingerprint{}, fmt.Errorf("read head: %w", err)
	}
	if err := readFullAt(r, tail, size-n); err != nil {
		return model.ContentFingerprint{}, fmt.Errorf("read tail: %w", err)
	}
	return model.ContentFingerprint{
		Hash:      digest(head, tail, size, declaredName),
		SizeBytes: size,
	}, nil
}

func readFullAt(r io.ReaderAt, buf []byte, off int64) error {
	if len(buf) == 0 {
		return nil
	}
	n, err := r.ReadAt(buf, off)
	if n == len(buf) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// FingerprintObject 从媒体桶计算指纹，declaredName 为空时取 objectKey；时长探测失败不影响结果
func (s *fingerprintServiceImpl) FingerprintObject(ctx context.Context, objectKey, declaredName string) (model.ContentFingerprint, error) {
	if s.media == nil || objectKey == "" {
		return model.ContentFingerprint{}, ErrParamInvalid
	}
	if declaredName == "" {
		declaredName = objectKey
	}

	obj, size, err := s.media.Open(ctx, objectKey)
	if err != nil {
		return model.ContentFingerprint{}, err
	}
	defer func() {
		_ = obj.Close()
	}()

	fp, err := s.FingerprintReader(obj, size, declaredName)
	if err != nil {
		return model.ContentFingerprint{}, err
	}

	if s.probe != nil {
		if mediaURL, uErr := s.media.PresignedURL(ctx, objectKey); uErr == nil {
			if d, pErr := s.probe(ctx, mediaURL); pErr == nil && d > 0 {
				fp.DurationSeconds = &d
			} else if pErr != nil {
				log.WarnContext(ctx, "probe media duration failed", "object", objectKey, "err", pErr)
			}
		}
	}
	return fp, nil
}

// Compare 哈希一致为 100；否则按大小相对差打分，超出容差即不匹配
func (s *fingerprintServiceImpl) Compare(a, b model.ContentFingerprint) MatchResult {
	return compareFingerprints(a, b, s.tolerance)
}

func compareFingerprints(a, b model.ContentFingerprint, tolerance float64) MatchResult {
	if a.SameHash(b) {
		return MatchResult{IsMatch: true, Confidence: exactMatchConfidence}
	}

	ratio := sizeRatio(a.SizeBytes, b.SizeBytes)
	if ratio > tolerance {
		return MatchResult{}
	}
	confidence := math.Max(0, sizeMatchCeiling-1000*ratio)
	return MatchResult{
		IsMatch:    confidence > sizeMatchThreshold,
		Confidence: confidence,
	}
}

func sizeRatio(a, b int64) float64 {
	larger := a
	if b > larger {
		larger = b
	}
	if larger <= 0 {
		return 0
	}
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return float64(diff) / float64(larger)
}

// FindRecentDuplicate 先查哈希完全一致，再在大小容差窗口内找最近一次发布的匹配
func (s *fingerprintServiceImpl) FindRecentDuplicate(ctx context.Context, fp model.ContentFingerprint, minDays int, excludeContentID uint64) (*DuplicateResult, error) {
	if minDays < 0 {
		return nil, ErrParamInvalid
	}

	matched, confidence, err := s.bestMatch(ctx, fp, excludeContentID)
	if err != nil {
		return nil, err
	}
	if matched == nil || matched.LastRepostAt == nil {
		return &DuplicateResult{}, nil
	}

	days := int(math.Floor(s.now().Sub(*matched.LastRepostAt).Hours() / 24))
	if days < 0 {
		days = 0
	}
	return &DuplicateResult{
		IsDuplicate:       days < minDays,
		DaysSinceLastPost: days,
		Confidence:        confidence,
		MatchedContent:    matched,
	}, nil
}

func (s *fingerprintServiceImpl) bestMatch(ctx context.Context, fp model.ContentFingerprint, excludeID uint64) (*model.Content, float64, error) {
	if len(fp.Hash) > 0 {
		exact, err := resilience.Do(ctx, s.policy, func(ctx context.Context) ([]*model.Content, error) {
			return s.contentRepo.FindPostedByHash(ctx, fp.Hash, excludeID)
		})
		if err != nil {
			return nil, 0, err
		}
		if len(exact) > 0 {
			return exact[0], exactMatchConfidence, nil
		}
	}

	if fp.SizeBytes <= 0 {
		return nil, 0, nil
	}
	minSize := int64(math.Floor(float64(fp.SizeBytes) * (1 - s.tolerance)))
	maxSize := int64(math.Ceil(float64(fp.SizeBytes) / (1 - s.tolerance)))
	candidates, err := resilience.Do(ctx, s.policy, func(ctx context.Context) ([]*model.Content, error) {
		return s.contentRepo.FindPostedBySizeRange(ctx, minSize, maxSize, excludeID)
	})
	if err != nil {
		return nil, 0, err
	}

	for _, c := range candidates {
		r := s.Compare(fp, c.Fingerprint())
		if r.IsMatch {
			return c, r.Confidence, nil
		}
	}
	return nil, 0, nil
}

// CheckContent 对内容库中已有内容做重复检测
func (s *fingerprintServiceImpl) CheckContent(ctx context.Context, contentID uint64, minDays int) (*DuplicateResult, error) {
	content, err := s.contentRepo.GetByID(ctx, contentID)
	if err != nil {
		return nil, err
	}
	if content == nil {
		return nil, ErrContentNotFound
	}
	fp := content.Fingerprint()
	if len(fp.Hash) == 0 && fp.SizeBytes <= 0 {
		return nil, ErrFingerprintMissing
	}
	return s.FindRecentDuplicate(ctx, fp, minDays, contentID)
}
