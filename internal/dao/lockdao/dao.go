package lockdao

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/savaki/branch-deployer/internal/constants"
	"github.com/savaki/ddb/v2"
)

const lockSK = "LOCK"

// TableName returns the default lock table name for env
func TableName(env string) string {
	return fmt.Sprintf("%s-branch-deployer-locks", env)
}

// PK represents the partition key: {Env}/{Branch}
// Branch is the sanitized branch name and never contains "/" or ":".
type PK string

// NewPK creates a partition key from env and branch
func NewPK(env, branch string) PK {
	return PK(fmt.Sprintf("%s/%s", env, branch))
}

// ParsePK parses a partition key into env and branch components
func ParsePK(pk PK) (env, branch string, err error) {
	s := string(pk)
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid PK format: %s, expected {env}/{branch}", s)
	}
	return parts[0], parts[1], nil
}

// String returns the string representation
func (pk PK) String() string {
	return string(pk)
}

// ID represents a lock ID in format {env}/{branch}:LOCK
// Example: dev/feature-42:LOCK
type ID string

// NewID creates an ID from env and branch
func NewID(env, branch string) ID {
	pk := NewPK(env, branch)
	return ID(fmt.Sprintf("%s:%s", pk, lockSK))
}

// ParseID parses an ID into env and branch components
func ParseID(id ID) (env, branch string, err error) {
	s := string(id)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid ID format: %s, expected {env}/{branch}:LOCK", s)
	}

	if parts[1] != lockSK {
		return "", "", fmt.Errorf("invalid ID format: %s, expected SK to be 'LOCK', got '%s'", s, parts[1])
	}

	return ParsePK(PK(parts[0]))
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// Record represents a branch lifecycle lock
type Record struct {
	PK         PK     `ddb:"hash" dynamodbav:"pk"`  // {Env}/{Branch}
	SK         string `ddb:"range" dynamodbav:"sk"` // Always "LOCK"
	Holder     string `dynamodbav:"holder"`         // KSUID of the invocation holding the lock
	Operation  string `dynamodbav:"operation"`      // create or delete
	DeliveryID string `dynamodbav:"delivery_id,omitempty"`
	AcquiredAt int64  `dynamodbav:"acquired_at"` // Unix timestamp when lock was acquired
	TTL        int64  `dynamodbav:"ttl"`         // Unix timestamp for DynamoDB TTL expiry
}

// GetID returns the ID for this record
func (r *Record) GetID() ID {
	env, branch, _ := ParsePK(r.PK)
	return NewID(env, branch)
}

// Expired reports whether the lock has outlived its TTL. DynamoDB removes
// expired items lazily, so readers must check.
func (r *Record) Expired(now time.Time) bool {
	return r.TTL > 0 && r.TTL <= now.Unix()
}

// AcquireInput contains fields for acquiring a branch lock
type AcquireInput struct {
	Env        string // Environment
	Branch     string // Sanitized branch name
	Holder     string // Invocation KSUID
	Operation  string // create or delete
	DeliveryID string // GitHub delivery id, informational
}

// ReleaseInput contains fields for releasing a branch lock
type ReleaseInput struct {
	ID     ID     // Lock ID
	Holder string // Invocation KSUID (must match lock holder)
}

// DAO provides data access operations for branch locks
type DAO struct {
	db    *ddb.DDB
	table *ddb.Table
	now   func() time.Time
}

// New creates a new DAO instance
func New(client *dynamodb.Client, tableName string) *DAO {
	db := ddb.New(client)
	table := db.MustTable(tableName, &Record{})
	return &DAO{
		db:    db,
		table: table,
		now:   time.Now,
	}
}

// Acquire attempts to acquire a branch lock.
// Returns the lock record if acquired, false if held by another invocation.
func (d *DAO) Acquire(ctx context.Context, input AcquireInput) (*Record, bool, error) {
	id := NewID(input.Env, input.Branch)
	now := d.now()

	existing, err := d.Find(ctx, id)
	if err != nil {
		return nil, false, fmt.Errorf("failed to check existing lock: %w", err)
	}

	if existing != nil && !existing.Expired(now) {
		if existing.Holder == input.Holder {
			// Same invocation already holds the lock (retry scenario)
			return existing, true, nil
		}
		return existing, false, nil
	}

	record := &Record{
		PK:         NewPK(input.Env, input.Branch),
		SK:         lockSK,
		Holder:     input.Holder,
		Operation:  input.Operation,
		DeliveryID: input.DeliveryID,
		AcquiredAt: now.Unix(),
		TTL:        now.Add(constants.LockTTL).Unix(),
	}

	err = d.table.Put(record).RunWithContext(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create lock: %w", err)
	}

	return record, true, nil
}

// Find retrieves a lock record by ID
// Returns nil if not found
func (d *DAO) Find(ctx context.Context, id ID) (*Record, error) {
	env, branch, err := ParseID(id)
	if err != nil {
		return nil, err
	}

	pk := NewPK(env, branch)
	var record Record

	err = d.table.Get(pk.String()).
		Range(lockSK).
		ConsistentRead(true).
		ScanWithContext(ctx, &record)
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "item not found") || strings.Contains(errStr, "ItemNotFound") {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get lock: %w", err)
	}

	if record.PK == "" && record.SK == "" {
		return nil, nil
	}

	return &record, nil
}

// Release releases a branch lock
// Only succeeds if the lock is held by the specified holder
func (d *DAO) Release(ctx context.Context, input ReleaseInput) error {
	existing, err := d.Find(ctx, input.ID)
	if err != nil {
		return fmt.Errorf("failed to check lock: %w", err)
	}

	if existing == nil {
		// No lock exists (already released or expired)
		return nil
	}

	if existing.Holder != input.Holder {
		return fmt.Errorf("lock not held by %s (held by %s)", input.Holder, existing.Holder)
	}

	return d.Delete(ctx, input.ID)
}

// Delete removes a lock record regardless of who holds it
func (d *DAO) Delete(ctx context.Context, id ID) error {
	env, branch, err := ParseID(id)
	if err != nil {
		return err
	}

	pk := NewPK(env, branch)

	err = d.table.Delete(pk.String()).
		Range(lockSK).
		RunWithContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete lock: %w", err)
	}

	return nil
}
