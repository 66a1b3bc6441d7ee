package envdao

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/savaki/ddb/v2"
	"github.com/savaki/gox/slicex"
)

const latest = "latest"

// TableName returns the default environment history table name for env
func TableName(env string) string {
	return fmt.Sprintf("%s-branch-deployer-environments", env)
}

// PK represents a DynamoDB partition key in format {env}/{branch}
// Example: dev/feature-42
// Branch is the sanitized branch name.
type PK string

// NewPK creates a new partition key from env and branch
func NewPK(env, branch string) PK {
	return PK(fmt.Sprintf("%s/%s", env, branch))
}

// ParsePK parses a partition key into its env and branch components
func ParsePK(pk PK) (env, branch string, err error) {
	s := string(pk)
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid PK format: %s, expected {env}/{branch}", s)
	}
	return parts[0], parts[1], nil
}

// String returns the string representation of the partition key
func (pk PK) String() string {
	return string(pk)
}

// ID represents a lifecycle record ID in format {env}/{branch}:{ksuid}
// Example: dev/feature-42:2HFj3kLmNoPqRsTuVwXy
type ID string

func (id ID) String() string {
	return string(id)
}

// ParseID parses an ID into its partition key (pk) and sort key (sk) components
func ParseID(id ID) (pk PK, sk string, err error) {
	s := string(id)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid environment ID format: %s, expected {env}/{branch}:{ksuid}", s)
	}
	return PK(parts[0]), parts[1], nil
}

// NewID constructs an ID from partition key and sort key
func NewID(pk PK, sk string) ID {
	return ID(fmt.Sprintf("%s:%s", pk, sk))
}

// Status represents the state of a lifecycle operation
type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusSuccess    Status = "SUCCESS"
	StatusFailed     Status = "FAILED"
)

// Operation is the lifecycle operation applied to a branch environment
type Operation string

const (
	OperationCreate Operation = "create"
	OperationDelete Operation = "delete"
)

// Record represents one lifecycle operation on a branch environment
type Record struct {
	PK                PK        `ddb:"hash" dynamodbav:"pk"`  // {env}/{branch} - DynamoDB partition key
	SK                string    `ddb:"range" dynamodbav:"sk"` // KSUID - DynamoDB sort key
	ID                ID        `dynamodbav:"id,omitempty"`   // ID is only used for latest entries
	Env               string    `dynamodbav:"env,omitempty"`
	Branch            string    `dynamodbav:"branch,omitempty"`    // Raw branch name
	Sanitized         string    `dynamodbav:"sanitized,omitempty"` // Sanitized branch name
	Operation         Operation `dynamodbav:"operation,omitempty"`
	Strategy          string    `dynamodbav:"strategy,omitempty"`
	EventKind         string    `dynamodbav:"event_kind,omitempty"`
	DeliveryID        string    `dynamodbav:"delivery_id,omitempty"`
	PipelineName      string    `dynamodbav:"pipeline_name,omitempty"`
	PipelineStackName string    `dynamodbav:"pipeline_stack_name,omitempty"`
	AppStackName      string    `dynamodbav:"app_stack_name,omitempty"`
	Status            Status    `dynamodbav:"status,omitempty"`
	ErrorMsg          *string   `dynamodbav:"error_msg,omitempty"`
	Warnings          []string  `dynamodbav:"warnings,omitempty"`
	CreatedAt         int64     `dynamodbav:"created_at,omitempty"`  // Unix epoch timestamp of creation
	FinishedAt        *int64    `dynamodbav:"finished_at,omitempty"` // Unix epoch timestamp of completion
	UpdatedAt         int64     `dynamodbav:"updated_at,omitempty"`  // Unix epoch timestamp of last update
}

// GetID returns the full ID in format: {env}/{branch}:{ksuid}
func (r *Record) GetID() ID {
	if r.ID != "" {
		return r.ID
	}
	return NewID(r.PK, r.SK)
}

// CreateInput contains the fields needed to record the start of a lifecycle operation
type CreateInput struct {
	Env          string
	Branch       string // Raw branch name
	Sanitized    string // Sanitized branch name
	SK           string // KSUID sort key
	Operation    Operation
	Strategy     string
	EventKind    string
	DeliveryID   string
	PipelineName string
}

// FinishInput contains the outcome of a lifecycle operation
type FinishInput struct {
	ID                ID
	Status            Status
	ErrorMsg          *string
	Warnings          []string
	PipelineStackName string
	AppStackName      string
}

// DAO provides data access operations for lifecycle records
type DAO struct {
	db    *ddb.DDB
	table *ddb.Table
}

// New creates a new DAO instance
func New(client *dynamodb.Client, tableName string) *DAO {
	db := ddb.New(client)
	table := db.MustTable(tableName, &Record{})
	return &DAO{
		db:    db,
		table: table,
	}
}

// Create records the start of a lifecycle operation with status IN_PROGRESS
func (d *DAO) Create(ctx context.Context, input CreateInput) (Record, error) {
	now := time.Now().Unix()

	record := Record{
		PK:           NewPK(input.Env, input.Sanitized),
		SK:           input.SK,
		Env:          input.Env,
		Branch:       input.Branch,
		Sanitized:    input.Sanitized,
		Operation:    input.Operation,
		Strategy:     input.Strategy,
		EventKind:    input.EventKind,
		DeliveryID:   input.DeliveryID,
		PipelineName: input.PipelineName,
		Status:       StatusInProgress,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := d.table.Put(&record).RunWithContext(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("failed to create environment record: %w", err)
	}

	return record, nil
}

// Find retrieves a lifecycle record by ID
// Returns an error if not found or if there's a database error
func (d *DAO) Find(ctx context.Context, id ID) (Record, error) {
	pk, sk, err := ParseID(id)
	if err != nil {
		return Record{}, err
	}

	var record Record

	err = d.table.Get(pk.String()).
		Range(sk).
		ConsistentRead(true).
		ScanWithContext(ctx, &record)
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "item not found") || strings.Contains(errStr, "ItemNotFound") {
			return Record{}, fmt.Errorf("environment record not found: %s", id)
		}
		return Record{}, fmt.Errorf("failed to find environment record: %w", err)
	}

	if record.PK == "" && record.SK == "" {
		return Record{}, fmt.Errorf("environment record not found: %s", id)
	}

	return record, nil
}

// Finish records the outcome of a lifecycle operation and creates/updates the
// "latest" magic record for the branch. The latest record has pk=latest/{env}
// and sk={original pk}.
func (d *DAO) Finish(ctx context.Context, input FinishInput) error {
	if input.Status == "" {
		return fmt.Errorf("status is required")
	}

	pk, sk, err := ParseID(input.ID)
	if err != nil {
		return err
	}
	env, sanitized, err := ParsePK(pk)
	if err != nil {
		return fmt.Errorf("failed to parse PK: %w", err)
	}

	now := time.Now().Unix()

	update := d.table.Update(pk.String()).
		Range(sk).
		Set("#Status = ?", string(input.Status)).
		Set("#UpdatedAt = ?", now)

	if input.Status == StatusSuccess || input.Status == StatusFailed {
		update = update.Set("#FinishedAt = ?", now)
	}
	if input.ErrorMsg != nil {
		update = update.Set("#ErrorMsg = ?", *input.ErrorMsg)
	}
	if len(input.Warnings) > 0 {
		update = update.Set("#Warnings = ?", input.Warnings)
	}
	if input.PipelineStackName != "" {
		update = update.Set("#PipelineStackName = ?", input.PipelineStackName)
	}
	if input.AppStackName != "" {
		update = update.Set("#AppStackName = ?", input.AppStackName)
	}

	latestRecord := &Record{
		PK:        NewPK(latest, env),
		SK:        pk.String(),
		ID:        input.ID,
		Env:       env,
		Sanitized: sanitized,
		Status:    input.Status,
		UpdatedAt: now,
	}

	put := d.table.Put(latestRecord)

	if _, err := d.db.TransactWriteItemsWithContext(ctx, update, put); err != nil {
		return fmt.Errorf("failed to finish environment record: %w", err)
	}

	return nil
}

// Query returns every lifecycle record for a branch, oldest first
func (d *DAO) Query(ctx context.Context, env, sanitized string) ([]Record, error) {
	var records []Record

	err := d.table.Query("#PK = ?", NewPK(env, sanitized).String()).
		FindAllWithContext(ctx, &records)
	if err != nil {
		return nil, fmt.Errorf("failed to query environment records: %w", err)
	}

	return records, nil
}

// QueryLatest returns the most recent finished operation of every branch in env,
// most recently updated first
func (d *DAO) QueryLatest(ctx context.Context, env string) ([]Record, error) {
	var records []Record

	err := d.table.Query("#PK = ?", NewPK(latest, env).String()).
		FindAllWithContext(ctx, &records)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest environments: %w", err)
	}

	slices.SortFunc(records, func(a, b Record) int {
		return cmp.Compare(b.UpdatedAt, a.UpdatedAt)
	})

	ids := slicex.Map(records, GetID)

	environments := make([]Record, 0, len(ids))
	for _, id := range ids {
		record, err := d.Find(ctx, id)
		if err != nil {
			// Skip records that are not found (may have been deleted)
			continue
		}
		environments = append(environments, record)
	}

	return environments, nil
}

// GetID returns the ID of record; used with slicex.Map
func GetID(record Record) ID {
	return record.GetID()
}
