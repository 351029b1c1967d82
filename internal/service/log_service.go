package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"go.uber.org/zap"

	"secops-dashboard/internal/models"
	"secops-dashboard/internal/repository"
	"secops-dashboard/internal/util"
)

const (
	// MaxLogFileSize bounds uploaded log files.
	MaxLogFileSize = 10 << 20
	// LogThreatThreshold is the anomaly score above which a log counts as a threat.
	LogThreatThreshold = 0.7
	logSampleSize      = 5
	maxLogLine         = 1 << 20
)

var suspiciousKeywords = []string{"error", "failed", "unauthorized", "denied"}

type LogAnalysisService struct {
	source repository.DataSource
	logger *zap.Logger
}

func NewLogAnalysisService(source repository.DataSource, logger *zap.Logger) *LogAnalysisService {
	return &LogAnalysisService{source: source, logger: logger}
}

// Analyze scans a log for suspicious keywords, stores every suspicious line
// as a processed log and returns the first few.
func (s *LogAnalysisService) Analyze(ctx context.Context, fileName string, r io.Reader) (models.LogAnalysisResult, error) {
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		fileName = "upload.log"
	}

	limited := &io.LimitedReader{R: r, N: MaxLogFileSize + 1}
	scanner := bufio.NewScanner(limited)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLogLine)

	var (
		lines      int
		suspicious []string
	)
	for scanner.Scan() {
		lines++
		line := scanner.Text()
		if isSuspiciousLine(line) {
			suspicious = append(suspicious, line)
		}
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return models.LogAnalysisResult{}, fmt.Errorf("%w: log line exceeds %d bytes", ErrInvalidInput, maxLogLine)
		}
		return models.LogAnalysisResult{}, fmt.Errorf("read log file: %w", err)
	}
	if limited.N <= 0 {
		return models.LogAnalysisResult{}, ErrLogFileTooLarge
	}
	if lines == 0 {
		return models.LogAnalysisResult{}, ErrEmptyLogFile
	}

	score := math.Min(1, float64(len(suspicious))/10)
	record := &models.ProcessedLog{
		FileName:          fileName,
		SuspiciousEntries: suspicious,
	}
	if err := s.source.InsertProcessedLog(ctx, record); err != nil {
		return models.LogAnalysisResult{}, fmt.Errorf("store processed log: %w", err)
	}

	result := models.LogAnalysisResult{
		ThreatDetected:    score > LogThreatThreshold,
		AnomalyScore:      score,
		SuspiciousEntries: head(suspicious, logSampleSize),
	}
	s.logger.Info("Log file analyzed",
		util.String("file_name", fileName),
		util.String("log_id", record.ID),
		util.Int("lines", lines),
		util.Int("suspicious", len(suspicious)),
		util.Bool("threat_detected", result.ThreatDetected),
	)
	return result, nil
}

func isSuspiciousLine(line string) bool {
	lower := strings.ToLower(line)
	for _, kw := range suspiciousKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func head(lines []string, n int) []string {
	if len(lines) > n {
		return append([]string(nil), lines[:n]...)
	}
	if lines == nil {
		return []string{}
	}
	return lines
}
