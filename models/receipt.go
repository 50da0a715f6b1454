package models

import "time"

// Receipt is the durable result record a processed session points at.
// Extraction results land here directly, never through the session.
type Receipt struct {
	ReceiptID  string        `dynamodbav:"receipt_id" json:"receiptId"`
	UserID     string        `dynamodbav:"user_id" json:"-"`
	ImageKey   string        `dynamodbav:"image_key" json:"-"`
	ImageURL   string        `dynamodbav:"image_url" json:"imageUrl"`
	Status     ReceiptStatus `dynamodbav:"status" json:"status"`
	Merchant   string        `dynamodbav:"merchant" json:"merchant"`
	TotalCents int64         `dynamodbav:"total_cents" json:"totalCents"`
	CreatedAt  time.Time     `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt  time.Time     `dynamodbav:"updated_at" json:"updatedAt"`
}

// ExtractionRequest is the one-way message handed to the OCR/LLM
// pipeline after a successful upload.
type ExtractionRequest struct {
	ReceiptID string `json:"receipt_id"`
	UserID    string `json:"user_id"`
	ImageURL  string `json:"image_url"`
}

// ExtractionResult is what the pipeline reports back on its own queue.
type ExtractionResult struct {
	ReceiptID  string `json:"receipt_id"`
	Status     string `json:"status"` // extracted | failed
	Merchant   string `json:"merchant,omitempty"`
	TotalCents int64  `json:"total_cents,omitempty"`
	Error      string `json:"error,omitempty"`
}

type ReceiptsResponse struct {
	Receipts []Receipt `json:"receipts"`
}
