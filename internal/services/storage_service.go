// internal/services/storage_service.go
package services

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/medifund/lending-backend/internal/config"
)

// StorageService stores loan documents (income proofs, medical estimates)
// in S3. Without AWS credentials it degrades to metadata-only records, which
// is enough for local development.
type StorageService struct {
	s3Client *s3.S3
	cfg      *config.Config
}

type UploadResult struct {
	URL      string `json:"url"`
	Key      string `json:"key"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
}

var allowedDocumentTypes = []string{".pdf", ".png", ".jpg", ".jpeg"}

const maxDocumentSize = 10 << 20 // 10 MB

func NewStorageService(cfg *config.Config) *StorageService {
	if cfg.AWS.AccessKeyID == "" {
		// No credentials: metadata-only records for local development.
		return &StorageService{cfg: cfg}
	}

	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(cfg.AWS.Region),
		Credentials: credentials.NewStaticCredentials(
			cfg.AWS.AccessKeyID,
			cfg.AWS.SecretAccessKey,
			"",
		),
	})
	if err != nil {
		logrus.WithError(err).Warn("Failed to create AWS session, documents will not be uploaded to S3")
		return &StorageService{cfg: cfg}
	}

	return &StorageService{
		s3Client: s3.New(sess),
		cfg:      cfg,
	}
}

// UploadLoanDocument validates and stores one document for a loan.
func (s *StorageService) UploadLoanDocument(file multipart.File, header *multipart.FileHeader, loanID uuid.UUID) (*UploadResult, error) {
	if header.Size > maxDocumentSize {
		return nil, fmt.Errorf("file size %d bytes exceeds maximum allowed size %d bytes", header.Size, int64(maxDocumentSize))
	}

	fileExt := strings.ToLower(filepath.Ext(header.Filename))
	allowed := false
	for _, t := range allowedDocumentTypes {
		if fileExt == t {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, fmt.Errorf("file type %s is not allowed", fileExt)
	}

	key := fmt.Sprintf("loans/%s/%d_%s%s", loanID, time.Now().Unix(), uuid.New().String()[:8], fileExt)

	fileBytes, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	contentType := header.Header.Get("Content-Type")

	if s.s3Client == nil {
		return &UploadResult{
			URL:      "/uploads/" + key,
			Key:      key,
			Size:     header.Size,
			MimeType: contentType,
		}, nil
	}

	params := &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.AWS.S3Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(fileBytes),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(fileBytes))),
	}

	if _, err := s.s3Client.PutObject(params); err != nil {
		return nil, fmt.Errorf("failed to upload to S3: %w", err)
	}

	return &UploadResult{
		URL:      fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.AWS.S3Bucket, s.cfg.AWS.Region, key),
		Key:      key,
		Size:     header.Size,
		MimeType: contentType,
	}, nil
}
