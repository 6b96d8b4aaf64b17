package commerce

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/iliamunaev/checkout-engine/internal/model"
)

//go:embed order_schema.json
var orderSchemaJSON []byte

var (
	orderSchemaOnce sync.Once
	orderSchema     *gojsonschema.Schema
	orderSchemaErr  error
)

func loadOrderSchema() (*gojsonschema.Schema, error) {
	orderSchemaOnce.Do(func() {
		orderSchema, orderSchemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(orderSchemaJSON))
	})
	return orderSchema, orderSchemaErr
}

// ValidatePayload checks p against the order submission schema and returns
// the encoded document on success.
func ValidatePayload(p model.OrderPayload) ([]byte, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode order payload: %w", err)
	}

	schema, err := loadOrderSchema()
	if err != nil {
		return nil, fmt.Errorf("load order schema: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return nil, fmt.Errorf("validate order payload: %w", err)
	}
	if result.Valid() {
		return body, nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, fmt.Sprintf("%s: %s", desc.Context().String(), desc.Description()))
	}
	return nil, &SchemaError{Problems: problems}
}
