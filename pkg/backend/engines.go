package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
)

// Backend paths.
const (
	PathStates     = "/dashboard/geo/states"
	PathDistricts  = "/dashboard/geo/districts"
	PathCities     = "/dashboard/geo/cities"
	PathInsights   = "/kpi/insights"
	PathOCR        = "/ocr/verify"
	PathAadhaar    = "/aadhaar/verify-with-form"
	PathFacial     = "/facial/verify"
	PathVehicle    = "/vehicle/detect"
	PathChat       = "/chatbot/chat"
	PathExecutive  = "/dashboard/executive-summary"
	PathEfficiency = "/dashboard/vahan/process-efficiency"
)

// Upload is one file sent to an engine.
type Upload struct {
	Name    string
	Content io.Reader
}

// EngineResult is the raw engine response.
type EngineResult map[string]any

// OCRRequest verifies a scanned document.
type OCRRequest struct {
	Image        Upload
	DocumentType string
}

// AadhaarRequest matches an Aadhaar card image against form fields.
type AadhaarRequest struct {
	Name          string
	DOB           string
	AadhaarNumber string
	Gender        string
	Image         Upload
}

// FaceMatchRequest compares a reference image with a live capture.
type FaceMatchRequest struct {
	Reference Upload
	Verify    Upload
}

// ChatRequest is one chatbot turn.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
	Language  string `json:"language,omitempty"`
}

// ChatResponse is the chatbot reply.
type ChatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
	Intent    string `json:"intent,omitempty"`
}

// VerifyDocument posts a document to the OCR engine.
func (c *HTTPClient) VerifyDocument(ctx context.Context, req OCRRequest) (EngineResult, error) {
	return c.postEngine(ctx, PathOCR, map[string]string{"document_type": req.DocumentType}, map[string]Upload{"image_file": req.Image})
}

// VerifyAadhaar posts an Aadhaar card with the typed form fields.
func (c *HTTPClient) VerifyAadhaar(ctx context.Context, req AadhaarRequest) (EngineResult, error) {
	fields := map[string]string{
		"name":           req.Name,
		"dob":            req.DOB,
		"aadhaar_number": stripSpaces(req.AadhaarNumber),
		"gender":         req.Gender,
	}
	return c.postEngine(ctx, PathAadhaar, fields, map[string]Upload{"image_file": req.Image})
}

// MatchFaces posts two images to the face match engine.
func (c *HTTPClient) MatchFaces(ctx context.Context, req FaceMatchRequest) (EngineResult, error) {
	return c.postEngine(ctx, PathFacial, nil, map[string]Upload{
		"reference_image": req.Reference,
		"verify_image":    req.Verify,
	})
}

// DetectVehicle posts an image to the vehicle classifier.
func (c *HTTPClient) DetectVehicle(ctx context.Context, image Upload) (EngineResult, error) {
	return c.postEngine(ctx, PathVehicle, nil, map[string]Upload{"image_file": image})
}

// Chat sends one chatbot message.
func (c *HTTPClient) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	var resp ChatResponse
	if err := c.postJSON(ctx, PathChat, req, &resp); err != nil {
		return ChatResponse{}, err
	}
	return resp, nil
}

func (c *HTTPClient) postEngine(ctx context.Context, path string, fields map[string]string, files map[string]Upload) (EngineResult, error) {
	body, contentType, err := multipartBody(fields, files)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.engineTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path, nil), body)
	if err != nil {
		return nil, fmt.Errorf("backend: build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	var result EngineResult
	if err := c.do(req, &result, true); err != nil {
		return nil, err
	}
	if result == nil {
		result = EngineResult{}
	}
	return result, nil
}

func multipartBody(fields map[string]string, files map[string]Upload) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for _, key := range sortedFieldNames(fields) {
		if err := writer.WriteField(key, fields[key]); err != nil {
			return nil, "", fmt.Errorf("backend: write field %s: %w", key, err)
		}
	}
	for _, key := range sortedFieldNames(files) {
		upload := files[key]
		if upload.Content == nil {
			return nil, "", fmt.Errorf("backend: %s is required", key)
		}
		name := upload.Name
		if name == "" {
			name = key
		}
		part, err := writer.CreateFormFile(key, filepath.Base(name))
		if err != nil {
			return nil, "", fmt.Errorf("backend: create form file %s: %w", key, err)
		}
		if _, err := io.Copy(part, upload.Content); err != nil {
			return nil, "", fmt.Errorf("backend: copy %s: %w", key, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("backend: close multipart body: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}
