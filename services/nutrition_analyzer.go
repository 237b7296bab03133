package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"buddy-vitality-service/models"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	DefaultPerplexityBaseURL = "https://api.perplexity.ai"
	DefaultNutritionModel    = "sonar"

	// maxInsightEntries caps how many recent meals go into one prompt.
	maxInsightEntries = 10
)

type NutritionalBalance struct {
	Protein float64 `json:"protein"`
	Carbs   float64 `json:"carbs"`
	Fats    float64 `json:"fats"`
}

// NutritionInsight is advisory feedback on recent meals. It never affects vitals.
type NutritionInsight struct {
	Summary            string             `json:"summary"`
	Recommendations    []string           `json:"recommendations"`
	NutritionalBalance NutritionalBalance `json:"nutritionalBalance"`
	HealthScore        float64            `json:"healthScore"`
	Concerns           []string           `json:"concerns"`
	Source             string             `json:"source"`
}

// NutritionAnalyzer always returns an insight; failures degrade to the mock.
type NutritionAnalyzer interface {
	AnalyzePattern(ctx context.Context, entries []models.FoodEntry) NutritionInsight
}

// MockInsight scores the share of healthy meals.
func MockInsight(entries []models.FoodEntry) NutritionInsight {
	score := 50.0
	var concerns []string
	if len(entries) > 0 {
		healthy := 0
		for _, e := range entries {
			if e.IsHealthy {
				healthy++
			}
		}
		score = math.Round(float64(healthy) / float64(len(entries)) * 100)
	} else {
		concerns = []string{"Not enough data to analyze"}
	}
	if concerns == nil {
		concerns = []string{}
	}
	return NutritionInsight{
		Summary: "Based on your recent meals",
		Recommendations: []string{
			"Try to eat more balanced meals",
			"Stay hydrated throughout the day",
			"Consider adding more variety to your diet",
		},
		NutritionalBalance: NutritionalBalance{Protein: 30, Carbs: 40, Fats: 30},
		HealthScore:        score,
		Concerns:           concerns,
		Source:             "mock",
	}
}

// MockNutritionAnalyzer is used when no API key is configured.
type MockNutritionAnalyzer struct{}

func (MockNutritionAnalyzer) AnalyzePattern(_ context.Context, entries []models.FoodEntry) NutritionInsight {
	return MockInsight(entries)
}

// PerplexityNutritionAnalyzer asks Perplexity's OpenAI-compatible chat API for an insight.
type PerplexityNutritionAnalyzer struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

func NewPerplexityNutritionAnalyzer(apiKey, baseURL, model string, logger *zap.Logger) *PerplexityNutritionAnalyzer {
	if baseURL == "" {
		baseURL = DefaultPerplexityBaseURL
	}
	if model == "" {
		model = DefaultNutritionModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimRight(baseURL, "/")
	return &PerplexityNutritionAnalyzer{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		logger: logger,
	}
}

const nutritionSystemPrompt = "Be precise and concise. You are a nutritionist analyzing eating patterns. " +
	"Return your analysis as a valid JSON object with the exact structure: " +
	"{summary: string, recommendations: string[], nutritionalBalance: {protein: number, carbs: number, fats: number}, " +
	"healthScore: number, concerns: string[]}. Do not include any markdown formatting, comments, or explanatory text."

func (a *PerplexityNutritionAnalyzer) AnalyzePattern(ctx context.Context, entries []models.FoodEntry) NutritionInsight {
	insight, err := a.analyze(ctx, entries)
	if err != nil {
		a.logger.Warn("nutrition_analysis_failed", zap.Error(err))
		return MockInsight(entries)
	}
	return insight
}

func (a *PerplexityNutritionAnalyzer) analyze(ctx context.Context, entries []models.FoodEntry) (NutritionInsight, error) {
	prompt, err := nutritionPrompt(entries)
	if err != nil {
		return NutritionInsight{}, err
	}

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: nutritionSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.2,
		TopP:        0.9,
		MaxTokens:   1000,
	})
	if err != nil {
		return NutritionInsight{}, fmt.Errorf("perplexity chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return NutritionInsight{}, fmt.Errorf("perplexity returned no content")
	}

	insight, err := ParseInsight(resp.Choices[0].Message.Content)
	if err != nil {
		return NutritionInsight{}, err
	}
	insight.Source = "perplexity"
	return insight, nil
}

type promptMeal struct {
	Food      string `json:"food"`
	IsHealthy bool   `json:"isHealthy"`
	Time      string `json:"time"`
}

func nutritionPrompt(entries []models.FoodEntry) (string, error) {
	if len(entries) > maxInsightEntries {
		entries = entries[:maxInsightEntries]
	}
	meals := make([]promptMeal, 0, len(entries))
	for _, e := range entries {
		meals = append(meals, promptMeal{Food: e.Name, IsHealthy: e.IsHealthy, Time: e.EatenAt.Format("15:04")})
	}
	list, err := json.MarshalIndent(meals, "", "  ")
	if err != nil {
		return "", err
	}
	return `Analyze these recent meals and provide nutritional insights. Return a JSON object without any comments or markdown formatting that includes:
{
  "summary": "Brief analysis of eating patterns",
  "recommendations": ["2-3 specific, actionable recommendations"],
  "nutritionalBalance": {"protein": number, "carbs": number, "fats": number},
  "healthScore": number from 0-100,
  "concerns": ["any nutritional concerns"]
}

The meals to analyze are:
` + string(list), nil
}

var (
	codeFence     = regexp.MustCompile("```(?:json)?\\n?|\\n?```")
	lineComment   = regexp.MustCompile(`(?m)^\s*//.*$`)
	blockComment  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	jsonObjectish = regexp.MustCompile(`(?s)\{.*\}`)
)

// ParseInsight cleans model output (fences, comments, chatter around the object)
// and fills missing fields with safe defaults.
func ParseInsight(content string) (NutritionInsight, error) {
	clean := codeFence.ReplaceAllString(content, "")
	clean = blockComment.ReplaceAllString(clean, "")
	clean = lineComment.ReplaceAllString(clean, "")

	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(clean), &raw); err != nil {
		obj := jsonObjectish.FindString(clean)
		if obj == "" {
			return NutritionInsight{}, fmt.Errorf("no JSON object in nutrition response")
		}
		if err := json.Unmarshal([]byte(obj), &raw); err != nil {
			return NutritionInsight{}, fmt.Errorf("failed to parse nutrition response: %w", err)
		}
	}

	insight := NutritionInsight{
		Summary:         "No summary available",
		Recommendations: []string{"Try to eat more balanced meals"},
		Concerns:        []string{},
		HealthScore:     toFloat(raw["healthScore"]),
	}
	if s, ok := raw["summary"].(string); ok && s != "" {
		insight.Summary = s
	}
	if recs, ok := toStrings(raw["recommendations"]); ok {
		insight.Recommendations = recs
	}
	if concerns, ok := toStrings(raw["concerns"]); ok {
		insight.Concerns = concerns
	}
	if bal, ok := raw["nutritionalBalance"].(map[string]interface{}); ok {
		insight.NutritionalBalance = NutritionalBalance{
			Protein: toFloat(bal["protein"]),
			Carbs:   toFloat(bal["carbs"]),
			Fats:    toFloat(bal["fats"]),
		}
	}
	return insight, nil
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0
		}
		return n
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}

func toStrings(v interface{}) ([]string, bool) {
	arr, ok := v.([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out, true
}
