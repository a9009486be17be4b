package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/bizsync/internal/common"
	sc "github.com/dmitrijs2005/bizsync/internal/server/config"
	"github.com/dmitrijs2005/bizsync/internal/server/models"
	"github.com/dmitrijs2005/bizsync/internal/server/repositories/repomanager"
)

const backupURLExpiry = 15 * time.Minute

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in, optFns...)
	}

	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

// BackupService exports a company's records to object storage.
type BackupService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	config      *sc.Config
	now         func() time.Time
}

func NewBackupService(db *sql.DB, m repomanager.RepositoryManager, cfg *sc.Config) *BackupService {
	return &BackupService{db: db, repomanager: m, config: cfg, now: time.Now}
}

type backupEntry struct {
	Type     string         `json:"type"`
	Document map[string]any `json:"document"`
}

type backupFile struct {
	CompanyID  string        `json:"companyId"`
	ExportedAt time.Time     `json:"exportedAt"`
	Records    []backupEntry `json:"records"`
}

// BackupKey is the object key of a backup taken at t.
func BackupKey(companyID string, t time.Time) string {
	return fmt.Sprintf("backups/%s/%d/%02d/%02d/%s.json", companyID, t.Year(), t.Month(), t.Day(), uuid.New())
}

func (s *BackupService) getS3Client(ctx context.Context) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(s.config.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,
			s.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
		o.UsePathStyle = true
	}), nil
}

// Export uploads every record of the caller's company as one JSON object
// and returns a presigned download link. Only admins may export.
func (s *BackupService) Export(ctx context.Context, id models.Identity) (*models.Backup, error) {
	if id.Role != models.RoleAdmin {
		return nil, fmt.Errorf("%w: backups need the admin role", common.ErrorForbidden)
	}

	recs, err := s.repomanager.Records(s.db).ListCompany(ctx, id.CompanyID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	file := backupFile{CompanyID: id.CompanyID, ExportedAt: now, Records: make([]backupEntry, 0, len(recs))}
	for _, r := range recs {
		file.Records = append(file.Records, backupEntry{Type: r.Type, Document: r.Document()})
	}

	body, err := json.Marshal(file)
	if err != nil {
		return nil, fmt.Errorf("%w: encode backup: %w", common.ErrorInternal, err)
	}

	client, err := s.getS3Client(ctx)
	if err != nil {
		return nil, err
	}

	bucket := s.config.S3Bucket
	key := BackupKey(id.CompanyID, now)

	_, err = putObject(client, ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("upload backup: %w", err)
	}

	req, err := presignGetObject(newS3PresignClient(client), ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(backupURLExpiry))
	if err != nil {
		return nil, fmt.Errorf("presign backup: %w", err)
	}

	return &models.Backup{Key: key, URL: req.URL, Records: len(recs), CreatedAt: now}, nil
}
