package util

import (
	"Cadence/internal/api/config"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// GetDuration 获取视频时长
func GetDuration(ctx context.Context, mediaUrl string) (float64, error) {
	ffprobePath := config.Cfg.LibPath.FFprobe
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}

	cmd := exec.CommandContext(ctx, ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		"-i", mediaUrl,
	)

	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe 解析失败: %w", err)
	}

	return strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
}
