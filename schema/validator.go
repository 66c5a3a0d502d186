package payloadschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed listing.schema.json
var listingSchemaJSON string

// ListingPayload is one scraped listing as delivered by a scraper batch.
// Numeric-ish fields arrive as string, number or null depending on the
// source page; the normalizer coerces them.
type ListingPayload struct {
	Source          string   `json:"source"`
	ListingID       string   `json:"listing_id"`
	Title           *string  `json:"title,omitempty"`
	Price           any      `json:"price,omitempty"`
	Address         *string  `json:"address,omitempty"`
	District        *string  `json:"district,omitempty"`
	SizePing        any      `json:"size_ping,omitempty"`
	Floor           *string  `json:"floor,omitempty"`
	URL             *string  `json:"url,omitempty"`
	PublishedAt     *string  `json:"published_at,omitempty"`
	HouseAge        any      `json:"houseage,omitempty"`
	UnitPrice       any      `json:"unit_price,omitempty"`
	KindName        *string  `json:"kind_name,omitempty"`
	Room            *string  `json:"room,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	ParkingDesc     *string  `json:"parking_desc,omitempty"`
	PublicRatio     any      `json:"public_ratio,omitempty"`
	ManagePriceDesc *string  `json:"manage_price_desc,omitempty"`
	Fitment         *string  `json:"fitment,omitempty"`
	ShapeName       *string  `json:"shape_name,omitempty"`
	CommunityName   *string  `json:"community_name,omitempty"`
	MainArea        any      `json:"main_area,omitempty"`
	Direction       *string  `json:"direction,omitempty"`
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// ValidateListingPayload checks one listing object against the embedded
// schema and semantic rules, returning the decoded payload.
func ValidateListingPayload(payload json.RawMessage) (*ListingPayload, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize payload JSON: %w", err)
	}

	var item ListingPayload
	if err := json.Unmarshal(normalized, &item); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}

	if err := validateSemantics(&item); err != nil {
		return nil, err
	}

	return &item, nil
}

// ValidateListingBatch validates a JSON array of listing payloads, failing on
// the first invalid element.
func ValidateListingBatch(payload json.RawMessage) ([]ListingPayload, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("batch payload is empty")
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("batch payload must be a JSON array: %w", err)
	}

	items := make([]ListingPayload, 0, len(raw))
	for i, elem := range raw {
		item, err := ValidateListingPayload(elem)
		if err != nil {
			return nil, fmt.Errorf("listing %d: %w", i, err)
		}
		items = append(items, *item)
	}
	return items, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true

		if err := compiler.AddResource("listing.schema.json", strings.NewReader(listingSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("listing.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}

		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("payload contains trailing content")
	}

	return value, nil
}

func validateSemantics(item *ListingPayload) error {
	if item == nil {
		return fmt.Errorf("payload is nil")
	}

	if strings.TrimSpace(item.Source) == "" {
		return fmt.Errorf("source must not be empty")
	}
	if strings.TrimSpace(item.ListingID) == "" {
		return fmt.Errorf("listing_id must not be empty")
	}

	if item.URL != nil && strings.TrimSpace(*item.URL) != "" {
		if _, err := url.ParseRequestURI(strings.TrimSpace(*item.URL)); err != nil {
			return fmt.Errorf("url is not a valid URI: %w", err)
		}
	}

	for i, tag := range item.Tags {
		if strings.TrimSpace(tag) == "" {
			return fmt.Errorf("tags[%d] must not be empty", i)
		}
	}

	return nil
}
