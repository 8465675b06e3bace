package services

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/File-Sharing-BondBridg/Document-Service/internal/storage"
	clamd "github.com/dutchcoders/go-clamd"
)

// ClamAVScanner streams upload content to a clamd daemon before it is stored.
type ClamAVScanner struct {
	client *clamd.Clamd
	logger *slog.Logger
}

// NewClamAVScanner takes a clamd address such as tcp://clamav:3310.
func NewClamAVScanner(address string, logger *slog.Logger) *ClamAVScanner {
	return &ClamAVScanner{
		client: clamd.NewClamd(address),
		logger: serviceLogger(logger, "clamav"),
	}
}

func (s *ClamAVScanner) CheckConnection(_ context.Context) error {
	return s.client.Ping()
}

func (s *ClamAVScanner) Scan(ctx context.Context, content []byte) (storage.ScanResult, error) {
	// go-clamd holds the connection and a goroutine open until abort is closed.
	abort := make(chan bool)
	defer close(abort)

	response, err := s.client.ScanStream(bytes.NewReader(content), abort)
	if err != nil {
		return storage.ScanResult{}, fmt.Errorf("scan failed: %w", err)
	}

	var result storage.ScanResult
	for {
		select {
		case <-ctx.Done():
			go drain(response)
			return storage.ScanResult{}, fmt.Errorf("scan aborted: %w", ctx.Err())
		case res, ok := <-response:
			if !ok {
				return result, nil
			}
			switch res.Status {
			case clamd.RES_FOUND:
				result.Infected = true
				result.Signature = res.Description
			case clamd.RES_ERROR, clamd.RES_PARSE_ERROR:
				go drain(response)
				return storage.ScanResult{}, fmt.Errorf("clamd error: %s", res.Description)
			}
		}
	}
}

// drain unblocks the go-clamd reader after an early return.
func drain(response <-chan *clamd.ScanResult) {
	for range response {
	}
}
