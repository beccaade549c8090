package blog

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/computer-anything/blog-backend/internal/db"
	"github.com/computer-anything/blog-backend/internal/models"
)

// VoteResult is the post tally after a vote.
type VoteResult struct {
	Upvotes   int              `json:"upvotes"`
	Downvotes int              `json:"downvotes"`
	UserVote  *models.VoteType `json:"user_vote"` // Nil when the vote was withdrawn.
}

func counterColumn(v models.VoteType) string {
	if v == models.VoteTypeUp {
		return "upvotes"
	}
	return "downvotes"
}

// Vote applies a vote by userID. Repeating the current vote withdraws it and the
// opposite vote replaces it. Counters change in the same transaction as the vote row.
func (s *Service) Vote(ctx context.Context, userID, postID uint64, voteType models.VoteType) (*VoteResult, error) {
	if !voteType.Valid() {
		return nil, invalid("unknown vote type")
	}
	var (
		result   *VoteResult
		errVote  error
		attempts = 2
	)
	for i := 0; i < attempts; i++ {
		result, errVote = s.vote(ctx, userID, postID, voteType)
		// Two first votes racing on the unique (user_id, post_id) index: the loser retries
		// and sees the winner's row.
		if errVote == nil || !db.IsUniqueViolation(errVote) {
			break
		}
	}
	return result, errVote
}

func (s *Service) vote(ctx context.Context, userID, postID uint64, voteType models.VoteType) (*VoteResult, error) {
	result := &VoteResult{}
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var post models.Post
		errPost := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id").First(&post, postID).Error
		if errPost != nil {
			if errors.Is(errPost, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("blog: load post: %w", errPost)
		}

		var existing models.Vote
		errExisting := tx.Where("user_id = ? AND post_id = ?", userID, postID).First(&existing).Error
		switch {
		case errors.Is(errExisting, gorm.ErrRecordNotFound):
			if errCreate := tx.Create(&models.Vote{UserID: userID, PostID: postID, VoteType: voteType}).Error; errCreate != nil {
				return errCreate
			}
			if errInc := bump(tx, postID, counterColumn(voteType), 1); errInc != nil {
				return errInc
			}
			current := voteType
			result.UserVote = &current
		case errExisting != nil:
			return fmt.Errorf("blog: load vote: %w", errExisting)
		case existing.VoteType == voteType:
			if errDelete := tx.Delete(&existing).Error; errDelete != nil {
				return fmt.Errorf("blog: delete vote: %w", errDelete)
			}
			if errDec := bump(tx, postID, counterColumn(voteType), -1); errDec != nil {
				return errDec
			}
		default:
			if errSwitch := tx.Model(&existing).Update("vote_type", voteType).Error; errSwitch != nil {
				return fmt.Errorf("blog: switch vote: %w", errSwitch)
			}
			if errDec := bump(tx, postID, counterColumn(existing.VoteType), -1); errDec != nil {
				return errDec
			}
			if errInc := bump(tx, postID, counterColumn(voteType), 1); errInc != nil {
				return errInc
			}
			current := voteType
			result.UserVote = &current
		}

		if errReload := tx.Select("upvotes", "downvotes").First(&post, postID).Error; errReload != nil {
			return fmt.Errorf("blog: reload post: %w", errReload)
		}
		result.Upvotes = post.Upvotes
		result.Downvotes = post.Downvotes
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return result, nil
}

func bump(tx *gorm.DB, postID uint64, column string, delta int) error {
	errUpdate := tx.Model(&models.Post{}).
		Where("id = ?", postID).
		UpdateColumn(column, gorm.Expr(column+" + ?", delta)).Error
	if errUpdate != nil {
		return fmt.Errorf("blog: update %s: %w", column, errUpdate)
	}
	return nil
}
