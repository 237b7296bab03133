package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

// FoodAnalysis is the classifier's verdict on a meal photo.
type FoodAnalysis struct {
	IsHealthy   bool     `json:"is_healthy"`
	Confidence  float64  `json:"confidence"`
	Labels      []string `json:"labels"`
	Description string   `json:"description"`
}

// FoodAnalyzer classifies a meal photo. Accuracy is not the engine's concern; it
// only reads IsHealthy.
type FoodAnalyzer interface {
	Analyze(ctx context.Context, image []byte) (FoodAnalysis, error)
}

// RandomFoodAnalyzer is the coin-flip placeholder used until a real model is wired.
type RandomFoodAnalyzer struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewRandomFoodAnalyzer(seed int64) *RandomFoodAnalyzer {
	return &RandomFoodAnalyzer{rnd: rand.New(rand.NewSource(seed))}
}

func (a *RandomFoodAnalyzer) Analyze(_ context.Context, _ []byte) (FoodAnalysis, error) {
	a.mu.Lock()
	healthy := a.rnd.Float64() > 0.5
	a.mu.Unlock()
	if healthy {
		return FoodAnalysis{IsHealthy: true, Confidence: 0.5, Labels: []string{"healthy meal"}, Description: "Healthy food detected!"}, nil
	}
	return FoodAnalysis{IsHealthy: false, Confidence: 0.5, Labels: []string{"treat"}, Description: "Looks like a treat!"}, nil
}

// HTTPFoodAnalyzer posts the photo to an external classifier service.
type HTTPFoodAnalyzer struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewHTTPFoodAnalyzer(baseURL, token string) *HTTPFoodAnalyzer {
	return &HTTPFoodAnalyzer{
		BaseURL: baseURL,
		Token:   token,
		Client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Analyze calls POST {BaseURL}/analyze with the raw image body.
func (a *HTTPFoodAnalyzer) Analyze(ctx context.Context, image []byte) (FoodAnalysis, error) {
	url := fmt.Sprintf("%s/analyze", a.BaseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(image))
	if err != nil {
		return FoodAnalysis{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", http.DetectContentType(image))
	if a.Token != "" {
		req.Header.Set("Authorization", "Bearer "+a.Token)
	}

	resp, err := a.Client.Do(req)
	if err != nil {
		return FoodAnalysis{}, fmt.Errorf("failed to call food analyzer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return FoodAnalysis{}, fmt.Errorf("food analyzer returned status %d: %s", resp.StatusCode, string(body))
	}

	var out FoodAnalysis
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return FoodAnalysis{}, fmt.Errorf("failed to decode food analyzer response: %w", err)
	}
	return out, nil
}
