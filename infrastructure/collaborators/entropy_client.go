package collaborators

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	pkgerrors "agora-backend/pkg/errors"
)

// EntropyClient calls the external entropy scoring service over HTTP
type EntropyClient struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewEntropyClient creates the adapter with its circuit breaker
func NewEntropyClient(baseURL string, timeout time.Duration, logger *zap.Logger) *EntropyClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "entropy",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &EntropyClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		breaker: breaker,
		logger:  logger,
	}
}

type entropyRequest struct {
	Texts []string `json:"texts"`
}

type entropyResponse struct {
	Entropy float64 `json:"entropy"`
}

// Estimate scores the disagreement entropy of one round's contributions
func (c *EntropyClient) Estimate(ctx context.Context, texts []string) (float64, error) {
	body, err := json.Marshal(entropyRequest{Texts: texts})
	if err != nil {
		return 0, pkgerrors.NewInternalError("encode entropy request").WithCause(err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/entropy", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("entropy service returned %d", resp.StatusCode)
		}

		var decoded entropyResponse
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return nil, err
		}
		return decoded.Entropy, nil
	})
	if err != nil {
		return 0, pkgerrors.NewExternalError("entropy", err)
	}

	entropy := result.(float64)
	if entropy < 0 {
		return 0, pkgerrors.NewExternalError("entropy",
			fmt.Errorf("service returned negative entropy %g", entropy))
	}
	return entropy, nil
}
