package cloudinary

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/rs/zerolog"

	"github.com/noah-isme/judging-integrity-api/pkg/contentstore"
)

// Config contains credentials required to talk to Cloudinary.
type Config struct {
	CloudName    string
	APIKey       string
	APISecret    string
	Folder       string
	FetchTimeout time.Duration
}

// Store keeps score documents as raw Cloudinary assets named by their content
// hash and reads them back through the public delivery URL.
type Store struct {
	client  *cloudinary.Cloudinary
	folder  string
	gateway *contentstore.Gateway
	logger  zerolog.Logger
}

// New constructs a Cloudinary-backed content store.
func New(cfg Config, logger zerolog.Logger) (*Store, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("cloudinary credentials must be provided")
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}

	folder := strings.Trim(cfg.Folder, "/")
	return &Store{
		client:  cld,
		folder:  folder,
		gateway: contentstore.NewGateway(deliveryBase(cfg.CloudName, folder), cfg.FetchTimeout),
		logger:  logger.With().Str("component", "cloudinary").Logger(),
	}, nil
}

// Put uploads the document as a raw asset whose public id is its content hash.
func (s *Store) Put(ctx context.Context, data []byte) (string, error) {
	hash, err := contentstore.HashOf(data)
	if err != nil {
		return "", err
	}

	params := uploader.UploadParams{
		Folder:       s.folder,
		PublicID:     hash,
		ResourceType: "raw",
	}

	result, err := s.client.Upload.Upload(ctx, bytes.NewReader(data), params)
	if err != nil {
		return "", fmt.Errorf("failed to upload content: %w", err)
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("failed to upload content: %s", result.Error.Message)
	}

	s.logger.Info().Str("public_id", result.PublicID).Str("content_hash", hash).Msg("content uploaded to cloudinary")

	return hash, nil
}

// Fetch downloads the document through the delivery URL and re-checks its hash.
func (s *Store) Fetch(ctx context.Context, hash string) ([]byte, error) {
	return s.gateway.Fetch(ctx, hash)
}

func deliveryBase(cloudName, folder string) string {
	base := fmt.Sprintf("https://res.cloudinary.com/%s/raw/upload", cloudName)
	if folder == "" {
		return base
	}
	return base + "/" + folder
}
