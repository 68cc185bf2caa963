package feeds

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"os"
	"strings"
	"sync"
	"time"

	"go-seedkeeper/internal/helpers"

	log "github.com/sirupsen/logrus"
)

// maxLoggedBody bounds how much of a feed body lands in the log.
const maxLoggedBody = 64 << 10

// LoggingTransport wraps an http.RoundTripper to log request and response details.
type LoggingTransport struct {
	Transport http.RoundTripper
	logFile   *os.File
	writer    *bufio.Writer
	mu        sync.Mutex
}

// NewLoggingTransport creates a new LoggingTransport appending to logFilePath.
func NewLoggingTransport(transport http.RoundTripper, logFilePath string) (*LoggingTransport, error) {
	safeLogFilePath := helpers.SanitizePath(logFilePath)
	// #nosec G304
	f, err := os.OpenFile(safeLogFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open feed log file %s: %w", safeLogFilePath, err)
	}
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &LoggingTransport{
		Transport: transport,
		logFile:   f,
		writer:    bufio.NewWriter(f),
	}, nil
}

func isTextual(contentType string) bool {
	return strings.Contains(contentType, "xml") || strings.HasPrefix(contentType, "text/")
}

// RoundTrip executes a single HTTP transaction, logging details.
func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	startTime := time.Now()

	reqDump, err := httputil.DumpRequestOut(req, false)
	if err != nil {
		log.WithError(err).Error("Failed to dump feed request for logging")
	} else {
		t.mu.Lock()
		t.writeLog(fmt.Sprintf("--- Request (%s) ---\n%s", startTime.Format(time.RFC3339), reqDump))
		t.mu.Unlock()
	}

	// the network round trip runs outside the lock
	resp, err := t.Transport.RoundTrip(req)
	duration := time.Since(startTime)

	t.mu.Lock()
	defer t.mu.Unlock()

	if err != nil {
		t.writeLog(fmt.Sprintf("--- Response Error (%s, Duration: %v) ---\n%s", time.Now().Format(time.RFC3339), duration, err))
	} else {
		contentType := resp.Header.Get("Content-Type")
		respDump, _ := httputil.DumpResponse(resp, false)
		if isTextual(contentType) {
			bodyBytes, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			resp.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			if readErr != nil {
				t.writeLog(fmt.Sprintf("--- Response Headers (%s, Duration: %v) ---\n%s(Body read failed: %v)", time.Now().Format(time.RFC3339), duration, respDump, readErr))
			} else {
				logged := bodyBytes
				if len(logged) > maxLoggedBody {
					logged = logged[:maxLoggedBody]
				}
				t.writeLog(fmt.Sprintf("--- Response Headers (%s, Duration: %v) ---\n%s--- Response Body (%s, %s) ---\n%s",
					time.Now().Format(time.RFC3339), duration, respDump, contentType, helpers.BytesToSize(uint64(len(bodyBytes))), logged))
			}
		} else {
			t.writeLog(fmt.Sprintf("--- Response Headers (%s, Duration: %v, Type: %s) ---\n%s(Body not logged)", time.Now().Format(time.RFC3339), duration, contentType, respDump))
		}
	}

	if errFlush := t.writer.Flush(); errFlush != nil {
		log.WithError(errFlush).Error("Failed to flush feed log writer")
	}
	return resp, err
}

// writeLog writes a string to the buffered writer.
func (t *LoggingTransport) writeLog(logString string) {
	if _, err := t.writer.WriteString(logString + "\n\n"); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing to feed log file: %v\n", err)
	}
}

// Close closes the underlying log file.
func (t *LoggingTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	errFlush := t.writer.Flush()
	errClose := t.logFile.Close()
	if errFlush != nil {
		return fmt.Errorf("failed to flush feed log buffer: %w", errFlush)
	}
	return errClose
}
