package payloadschema

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestValidateListingPayload_Valid(t *testing.T) {
	payload := json.RawMessage(`{
		"source":"site_a",
		"listing_id":"L-12345",
		"title":"信義區豪宅出租",
		"price":"35,000 元/月",
		"address":"松仁路100號3樓",
		"district":"信義區",
		"size_ping":25.5,
		"floor":"3F/12F",
		"url":"https://example.com/listing/L-12345",
		"published_at":"2026-08-01T10:00:00Z",
		"tags":["可養寵物","近捷運"]
	}`)

	item, err := ValidateListingPayload(payload)
	if err != nil {
		t.Fatalf("expected payload to be valid, got error: %v", err)
	}

	if item.Source != "site_a" {
		t.Fatalf("expected source=site_a, got %q", item.Source)
	}
	if item.ListingID != "L-12345" {
		t.Fatalf("expected listing_id=L-12345, got %q", item.ListingID)
	}
}

func TestValidateListingPayload_MissingListingID(t *testing.T) {
	payload := json.RawMessage(`{
		"source":"site_a",
		"title":"missing id"
	}`)

	_, err := ValidateListingPayload(payload)
	if err == nil {
		t.Fatalf("expected validation to fail for missing listing_id")
	}
}

func TestValidateListingPayload_BlankSource(t *testing.T) {
	payload := json.RawMessage(`{
		"source":"   ",
		"listing_id":"L-1"
	}`)

	_, err := ValidateListingPayload(payload)
	if err == nil {
		t.Fatalf("expected validation to fail for whitespace-only source")
	}
	if !strings.Contains(err.Error(), "source must not be empty") {
		t.Fatalf("expected source semantic error, got: %v", err)
	}
}

func TestValidateListingPayload_NumericPriceAccepted(t *testing.T) {
	payload := json.RawMessage(`{
		"source":"site_b",
		"listing_id":"L-2",
		"price":42000
	}`)

	if _, err := ValidateListingPayload(payload); err != nil {
		t.Fatalf("expected numeric price to be valid, got error: %v", err)
	}
}

func TestValidateListingPayload_BadPriceType(t *testing.T) {
	payload := json.RawMessage(`{
		"source":"site_b",
		"listing_id":"L-3",
		"price":{"amount":42000}
	}`)

	_, err := ValidateListingPayload(payload)
	if err == nil {
		t.Fatalf("expected validation to fail when price is an object")
	}
}

func TestValidateListingPayload_InvalidURL(t *testing.T) {
	payload := json.RawMessage(`{
		"source":"site_a",
		"listing_id":"L-4",
		"url":"not a url"
	}`)

	_, err := ValidateListingPayload(payload)
	if err == nil {
		t.Fatalf("expected validation to fail for malformed url")
	}
}

func TestValidateListingBatch(t *testing.T) {
	payload := json.RawMessage(`[
		{"source":"site_a","listing_id":"L-1"},
		{"source":"site_a","listing_id":"L-2","price":"30,000"}
	]`)

	items, err := ValidateListingBatch(payload)
	if err != nil {
		t.Fatalf("expected batch to be valid, got error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
}

func TestValidateListingBatch_ReportsIndex(t *testing.T) {
	payload := json.RawMessage(`[
		{"source":"site_a","listing_id":"L-1"},
		{"source":"site_a"}
	]`)

	_, err := ValidateListingBatch(payload)
	if err == nil {
		t.Fatalf("expected batch validation to fail")
	}
	if !strings.Contains(err.Error(), "listing 1") {
		t.Fatalf("expected failing index in error, got: %v", err)
	}
}

func TestValidateListingBatch_NotArray(t *testing.T) {
	payload := json.RawMessage(`{"source":"site_a","listing_id":"L-1"}`)

	if _, err := ValidateListingBatch(payload); err == nil {
		t.Fatalf("expected non-array batch to fail")
	}
}
