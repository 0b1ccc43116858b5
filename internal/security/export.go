package security

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/solace/internal/storage"
)

// exportFetchLimit bounds how many records per collection an export gathers.
const exportFetchLimit = 10000

// Export bundles every collection a user owns. Conversations are returned
// decrypted: an export that cannot be read is not an export.
type Export struct {
	Conversations []storage.Message
	Journal       []storage.JournalEntry
	Insights      []storage.Insight
	Privacy       storage.PrivacySettings
	Retention     storage.RetentionPolicy
}

// ExportUserData gathers the user's data across collections. It refuses
// with ErrPermissionDenied unless the user's settings allow export, and the
// attempt is audited either way.
func (g *Guard) ExportUserData(ctx context.Context, userID string) (Export, error) {
	ps, err := g.GetPrivacySettings(ctx, userID)
	if err != nil {
		return Export{}, err
	}
	if !ps.ExportDataAllowed {
		g.audit(ctx, userID, "export_denied", "export_data_allowed is false")
		return Export{}, fmt.Errorf("%w: data export is disabled in privacy settings", ErrPermissionDenied)
	}

	out := Export{Privacy: ps}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		msgs, err := g.store.GetRecentMessages(egCtx, userID, exportFetchLimit)
		if err != nil {
			return fmt.Errorf("exporting conversations: %w", err)
		}
		for i := range msgs {
			if !msgs[i].Encrypted {
				continue
			}
			plain, err := g.DecryptMessage(msgs[i].Content)
			if err != nil {
				return fmt.Errorf("exporting message %s: %w", msgs[i].ID, err)
			}
			msgs[i].Content = plain
			msgs[i].Encrypted = false
		}
		out.Conversations = msgs
		return nil
	})
	eg.Go(func() error {
		entries, err := g.store.GetRecentJournalEntries(egCtx, userID, exportFetchLimit)
		if err != nil {
			return fmt.Errorf("exporting journal: %w", err)
		}
		out.Journal = entries
		return nil
	})
	eg.Go(func() error {
		insights, err := g.store.ListInsights(egCtx, userID)
		if err != nil {
			return fmt.Errorf("exporting insights: %w", err)
		}
		out.Insights = insights
		return nil
	})
	eg.Go(func() error {
		rp, err := g.GetRetentionPolicy(egCtx, userID)
		if err != nil {
			return fmt.Errorf("exporting retention policy: %w", err)
		}
		out.Retention = rp
		return nil
	})

	if err := eg.Wait(); err != nil {
		return Export{}, err
	}

	g.audit(ctx, userID, "export_completed", "")
	return out, nil
}

// DeleteAllUserData removes every collection the user owns. The operation is
// irreversible; partial failures are reported rather than hidden, and the
// outcome is audited so erasure itself stays accountable.
func (g *Guard) DeleteAllUserData(ctx context.Context, userID string) (storage.DeleteReport, error) {
	report, err := g.store.DeleteUserData(ctx, userID)

	g.mu.Lock()
	delete(g.settingsCache, userID)
	g.mu.Unlock()

	if err != nil {
		g.audit(ctx, userID, "account_deletion_partial", fmt.Sprintf("failed categories: %d", len(report.Failed)))
		return report, fmt.Errorf("deleting user data: %w", err)
	}

	g.audit(ctx, userID, "account_deleted", "")
	g.logger.Info("user data deleted", "user", userID, "categories", len(report.Deleted))
	return report, nil
}
