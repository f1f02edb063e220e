package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/OFFIS-RIT/dochub/backend/pkg/common"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const artifactRoot = "artifacts"

// ArtifactStore keeps pipeline artifacts as objects under
// artifacts/{document}/{stage}/{name}. Writing the same key again replaces
// the object.
type ArtifactStore struct {
	bucket string
	client *s3.Client
}

func NewArtifactStore(bucket string, client *s3.Client) *ArtifactStore {
	return &ArtifactStore{bucket: bucket, client: client}
}

func artifactPrefix(documentID, stage string) string {
	if stage == "" {
		return path.Join(artifactRoot, documentID) + "/"
	}
	return path.Join(artifactRoot, documentID, stage) + "/"
}

func artifactKey(a common.Artifact) string {
	return artifactPrefix(a.DocumentID, a.Stage) + a.Name
}

// parseArtifactKey splits a key back into document, stage and name.
func parseArtifactKey(key string) (documentID, stage, name string, ok bool) {
	rest, found := strings.CutPrefix(key, artifactRoot+"/")
	if !found {
		return "", "", "", false
	}
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

func (s *ArtifactStore) Put(ctx context.Context, a common.Artifact) error {
	contentType := a.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(artifactKey(a)),
		Body:        bytes.NewReader(a.Payload),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload artifact to S3: %w", err)
	}
	return nil
}

func (s *ArtifactStore) List(ctx context.Context, documentID string, stage string) ([]common.Artifact, error) {
	keys, err := s.listKeys(ctx, artifactPrefix(documentID, stage))
	if err != nil {
		return nil, err
	}

	out := make([]common.Artifact, 0, len(keys))
	for _, key := range keys {
		doc, st, name, ok := parseArtifactKey(key)
		if !ok {
			continue
		}
		obj, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get artifact %s: %w", key, err)
		}
		payload, err := io.ReadAll(obj.Body)
		obj.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read artifact %s: %w", key, err)
		}

		a := common.Artifact{
			DocumentID:  doc,
			Stage:       st,
			Name:        name,
			ContentType: aws.ToString(obj.ContentType),
			Payload:     payload,
		}
		if obj.LastModified != nil {
			a.CreatedAt = *obj.LastModified
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Stage != out[j].Stage {
			return out[i].Stage < out[j].Stage
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// DeleteDocument removes every artifact of a document.
func (s *ArtifactStore) DeleteDocument(ctx context.Context, documentID string) error {
	prefix := artifactPrefix(documentID, "")
	listInput := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}

	for {
		listOutput, err := s.client.ListObjectsV2(ctx, listInput)
		if err != nil {
			return fmt.Errorf("failed to list objects in folder %s: %w", prefix, err)
		}
		if len(listOutput.Contents) == 0 {
			break
		}

		var objectsToDelete []types.ObjectIdentifier
		for _, obj := range listOutput.Contents {
			objectsToDelete = append(objectsToDelete, types.ObjectIdentifier{
				Key: obj.Key,
			})
		}

		_, err = s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{
				Objects: objectsToDelete,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			return fmt.Errorf("failed to delete objects in folder %s: %w", prefix, err)
		}

		if listOutput.IsTruncated != nil && *listOutput.IsTruncated {
			listInput.ContinuationToken = listOutput.NextContinuationToken
		} else {
			break
		}
	}

	return nil
}

func (s *ArtifactStore) listKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	listInput := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}

	for {
		listOutput, err := s.client.ListObjectsV2(ctx, listInput)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects with prefix %s: %w", prefix, err)
		}

		for _, obj := range listOutput.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}

		if listOutput.IsTruncated != nil && *listOutput.IsTruncated {
			listInput.ContinuationToken = listOutput.NextContinuationToken
		} else {
			break
		}
	}

	return keys, nil
}
