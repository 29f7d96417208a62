package relay

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/zulandar/mailslot/internal/models"
	"github.com/zulandar/mailslot/internal/telegraph"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostPrefix starts the payload of the admin-facing publish button.
const PostPrefix = "post_channel"

// Claim is the decoded payload of a publish button.
type Claim struct {
	SubmitterID int64
	Ref         string // submission reference; empty on legacy buttons
}

// NewClaimToken returns the publish payload for a new submission:
// "post_channel:<submitterID>:<ulid>".
func NewClaimToken(submitterID int64) string {
	return fmt.Sprintf("%s:%d:%s", PostPrefix, submitterID, ulid.Make().String())
}

// IsClaimToken reports whether data is a publish payload.
func IsClaimToken(data string) bool {
	return data == PostPrefix || strings.HasPrefix(data, PostPrefix+":")
}

// ParseClaim decodes "post_channel:<id>[:<ref>]".
func ParseClaim(data string) (Claim, bool) {
	parts := strings.Split(data, ":")
	if len(parts) < 2 || len(parts) > 3 || parts[0] != PostPrefix {
		return Claim{}, false
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || id <= 0 {
		return Claim{}, false
	}
	c := Claim{SubmitterID: id}
	if len(parts) == 3 {
		if _, err := ulid.ParseStrict(parts[2]); err != nil {
			return Claim{}, false
		}
		c.Ref = parts[2]
	}
	return c, true
}

// Key returns the identity under which a publication is claimed. Legacy
// buttons carry no reference; the admin-side message stands in for it.
func (c Claim) Key(msg telegraph.MessageRef) string {
	if c.Ref != "" {
		return "sub:" + c.Ref
	}
	return fmt.Sprintf("msg:%d:%d", msg.ChatID, msg.MessageID)
}

// Claims records which submissions have been published.
type Claims struct {
	db *gorm.DB
}

// NewClaims creates a Claims store. The publications table must exist.
func NewClaims(db *gorm.DB) (*Claims, error) {
	if db == nil {
		return nil, fmt.Errorf("relay: claims: db is required")
	}
	return &Claims{db: db}, nil
}

// Acquire claims key for publication. It reports false when the key was
// already claimed.
func (c *Claims) Acquire(key string, submitterID, adminID int64) (bool, error) {
	res := c.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.Publication{
		ClaimKey:    key,
		SubmitterID: submitterID,
		AdminID:     adminID,
	})
	if res.Error != nil {
		return false, fmt.Errorf("relay: claim %s: %w", key, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Release drops a claim so the submission can be published again.
func (c *Claims) Release(key string) error {
	if err := c.db.Where("claim_key = ?", key).Delete(&models.Publication{}).Error; err != nil {
		return fmt.Errorf("relay: release %s: %w", key, err)
	}
	return nil
}

// Count returns the number of claimed publications for the submitter.
func (c *Claims) Count(submitterID int64) (int64, error) {
	var n int64
	err := c.db.Model(&models.Publication{}).Where("submitter_id = ?", submitterID).Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("relay: count publications %d: %w", submitterID, err)
	}
	return n, nil
}
