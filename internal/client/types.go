package client

import (
	"context"
	"time"
)

// GenerateRequest представляет запрос на генерацию вопросов.
type GenerateRequest struct {
	ActivityID string         `json:"activity_id"`
	ConceptIDs []string       `json:"concept_ids"`
	Config     GenerateConfig `json:"config"`
}

// GenerateConfig содержит настройки генерации.
type GenerateConfig struct {
	QuestionTypes          []QuestionTypeCount    `json:"question_types"`
	DifficultyDistribution DifficultyDistribution `json:"difficulty_distribution"`
}

// QuestionTypeCount задает количество вопросов одного типа.
type QuestionTypeCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// DifficultyDistribution задает распределение сложности.
type DifficultyDistribution struct {
	Easy   int `json:"easy"`
	Medium int `json:"medium"`
	Hard   int `json:"hard"`
}

// Client определяет интерфейс бэкенда генерации вопросов.
// Ответ бэкенда непрозрачен: новые вопросы приходят строками в базу
// и подбираются через realtime-фид или перечитку.
type Client interface {
	// GenerateQuestions запускает генерацию вопросов.
	GenerateQuestions(ctx context.Context, req GenerateRequest) error
}

// Таймауты
const timeoutGenerate = 30 * time.Second
