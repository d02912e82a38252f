package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/noah-isme/gema-assessment-api/internal/models"
)

// answerSchemas compiles and caches per-question response schemas.
type answerSchemas struct {
	cache sync.Map
}

func (c *answerSchemas) validate(question models.Question, payload []byte) error {
	if !json.Valid(payload) {
		return fmt.Errorf("%w: malformed json", ErrInvalidAnswerPayload)
	}
	if len(question.ResponseSchema) == 0 {
		return nil
	}

	schema, err := c.compile(question)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAnswerPayload, err)
	}

	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()
	var value interface{}
	if err := decoder.Decode(&value); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAnswerPayload, err)
	}

	if err := schema.Validate(value); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAnswerPayload, err)
	}
	return nil
}

func (c *answerSchemas) compile(question models.Question) (*jsonschema.Schema, error) {
	key := fmt.Sprintf("%d:%d", question.ID, question.UpdatedAt.UnixNano())
	if cached, ok := c.cache.Load(key); ok {
		return cached.(*jsonschema.Schema), nil
	}

	url := fmt.Sprintf("question-%d.json", question.ID)
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(question.ResponseSchema)); err != nil {
		return nil, err
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, err
	}

	c.cache.Store(key, schema)
	return schema, nil
}
