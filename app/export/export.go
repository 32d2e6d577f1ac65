// Package export writes the subscriber list to an Excel workbook.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	e "nuclight.org/referral-tg-bot/pkg/entities"
	"nuclight.org/referral-tg-bot/pkg/logger"
)

const sheetName = "Subscribers"

var header = []any{
	"ID", "Telegram ID", "Username", "First name", "Last name", "Joined at",
	"Referrals", "Invited by", "Received gift", "Lead magnet", "Tags",
}

type UserLister interface {
	ListUsers(ctx context.Context) ([]e.User, error)
}

type Exporter struct {
	Log   logger.Logger
	Store UserLister

	// Dir receives exported files, the system temp dir when empty
	Dir string
}

// Export writes a workbook under a unique name in Dir and returns its path.
// The caller owns the file.
func (x *Exporter) Export(ctx context.Context) (string, error) {
	dir := x.Dir
	if dir == "" {
		dir = os.TempDir()
	}

	path := filepath.Join(dir, "subscribers_"+uuid.NewString()+".xlsx")
	if err := x.WriteFile(ctx, path); err != nil {
		return "", err
	}

	return path, nil
}

// WriteFile writes the workbook of all subscribers to path.
func (x *Exporter) WriteFile(ctx context.Context, path string) error {
	users, err := x.Store.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("listing users: %w", err)
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			x.Log.Warn("closing workbook", "error", err)
		}
	}()

	if err = f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}

	if err = f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for i, u := range users {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("addressing row %d: %w", i+2, err)
		}
		row := userRow(u)
		if err = f.SetSheetRow(sheetName, cell, &row); err != nil {
			return fmt.Errorf("writing user %d: %w", u.ID, err)
		}
	}

	if err = f.SaveAs(path); err != nil {
		return fmt.Errorf("saving workbook: %w", err)
	}

	x.Log.Info("subscribers exported", "path", path, "users", len(users))

	return nil
}

func userRow(u e.User) []any {
	return []any{
		u.ID,
		u.TelegramID,
		u.Username,
		u.FirstName,
		u.LastName,
		u.JoinedAt.UTC().Format(time.DateTime),
		u.Referrals,
		optionalID(u.InvitedBy),
		u.ReceivedGift,
		optionalID(u.LeadMagnetID),
		strings.Join(u.Tags, ", "),
	}
}

func optionalID(id *int64) string {
	if id == nil {
		return ""
	}
	return strconv.FormatInt(*id, 10)
}
