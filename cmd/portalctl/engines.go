package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goliatone/go-civic-dashboard/pkg/backend"
)

type engineCmd struct {
	VerifyDocument verifyDocumentCmd `cmd:"" name:"verify-document" help:"OCR a scanned document and verify its fields."`
	VerifyAadhaar  verifyAadhaarCmd  `cmd:"" name:"verify-aadhaar" help:"Match an Aadhaar card image against form fields."`
	MatchFaces     matchFacesCmd     `cmd:"" name:"match-faces" help:"Compare a reference photo with a live capture."`
	DetectVehicle  detectVehicleCmd  `cmd:"" name:"detect-vehicle" help:"Classify the vehicle in an image."`
	Chat           chatCmd           `cmd:"" help:"Send one message to the citizen services assistant."`
}

type verifyDocumentCmd struct {
	Image        string `arg:"" type:"existingfile" help:"Scanned document image."`
	DocumentType string `name:"type" default:"driving_license" help:"Document type understood by the OCR engine."`
}

func (cmd *verifyDocumentCmd) Run(ctx context.Context, g *Globals) error {
	return withEngines(ctx, g, func(client *backend.HTTPClient) (any, error) {
		image, closeFn, err := openUpload(cmd.Image)
		if err != nil {
			return nil, err
		}
		defer closeFn()
		return client.VerifyDocument(ctx, backend.OCRRequest{Image: image, DocumentType: cmd.DocumentType})
	})
}

type verifyAadhaarCmd struct {
	Image  string `arg:"" type:"existingfile" help:"Aadhaar card image."`
	Name   string `required:"" help:"Name as entered on the form."`
	DOB    string `name:"dob" required:"" help:"Date of birth (DD/MM/YYYY)."`
	Number string `required:"" help:"Aadhaar number; spaces are ignored."`
	Gender string `help:"Gender as entered on the form."`
}

func (cmd *verifyAadhaarCmd) Run(ctx context.Context, g *Globals) error {
	return withEngines(ctx, g, func(client *backend.HTTPClient) (any, error) {
		image, closeFn, err := openUpload(cmd.Image)
		if err != nil {
			return nil, err
		}
		defer closeFn()
		return client.VerifyAadhaar(ctx, backend.AadhaarRequest{
			Name:          cmd.Name,
			DOB:           cmd.DOB,
			AadhaarNumber: cmd.Number,
			Gender:        cmd.Gender,
			Image:         image,
		})
	})
}

type matchFacesCmd struct {
	Reference string `arg:"" type:"existingfile" help:"Reference photo."`
	Verify    string `arg:"" type:"existingfile" help:"Photo to verify."`
}

func (cmd *matchFacesCmd) Run(ctx context.Context, g *Globals) error {
	return withEngines(ctx, g, func(client *backend.HTTPClient) (any, error) {
		ref, closeRef, err := openUpload(cmd.Reference)
		if err != nil {
			return nil, err
		}
		defer closeRef()
		verify, closeVerify, err := openUpload(cmd.Verify)
		if err != nil {
			return nil, err
		}
		defer closeVerify()
		return client.MatchFaces(ctx, backend.FaceMatchRequest{Reference: ref, Verify: verify})
	})
}

type detectVehicleCmd struct {
	Image string `arg:"" type:"existingfile" help:"Vehicle image."`
}

func (cmd *detectVehicleCmd) Run(ctx context.Context, g *Globals) error {
	return withEngines(ctx, g, func(client *backend.HTTPClient) (any, error) {
		image, closeFn, err := openUpload(cmd.Image)
		if err != nil {
			return nil, err
		}
		defer closeFn()
		return client.DetectVehicle(ctx, image)
	})
}

type chatCmd struct {
	Message  string `arg:"" help:"Message to send."`
	Session  string `help:"Continue an existing chat session."`
	Language string `default:"en" help:"Reply language."`
}

func (cmd *chatCmd) Run(ctx context.Context, g *Globals) error {
	return withEngines(ctx, g, func(client *backend.HTTPClient) (any, error) {
		return client.Chat(ctx, backend.ChatRequest{Message: cmd.Message, SessionID: cmd.Session, Language: cmd.Language})
	})
}

func withEngines(ctx context.Context, g *Globals, call func(*backend.HTTPClient) (any, error)) error {
	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.Close()
	client, err := a.engines()
	if err != nil {
		return err
	}
	result, err := call(client)
	if err != nil {
		return err
	}
	return writeJSON(os.Stdout, result)
}

func openUpload(path string) (backend.Upload, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return backend.Upload{}, nil, fmt.Errorf("portalctl: open %s: %w", path, err)
	}
	return backend.Upload{Name: filepath.Base(path), Content: f}, func() { _ = f.Close() }, nil
}
