package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Tally store (SQLite).
var Migrations = migrate.NewGroup("tally")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_tally_members",
			Version: "20250301000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tally_members (
    id         TEXT PRIMARY KEY,
    tenant_id  TEXT NOT NULL,
    name       TEXT NOT NULL DEFAULT '',
    email      TEXT NOT NULL DEFAULT '',
    role       TEXT NOT NULL DEFAULT 'employee',
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_tally_members_tenant_role ON tally_members (tenant_id, role);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tally_members`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tally_invoices",
			Version: "20250301000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tally_invoices (
    id                  TEXT PRIMARY KEY,
    tenant_id           TEXT NOT NULL,
    number              TEXT NOT NULL,
    year                INTEGER NOT NULL,
    month               INTEGER NOT NULL,
    sequence            INTEGER NOT NULL,
    customer_name       TEXT NOT NULL DEFAULT '',
    customer            TEXT NOT NULL DEFAULT '{}',
    contact_id          TEXT NOT NULL DEFAULT '',
    lines               TEXT NOT NULL DEFAULT '[]',
    currency            TEXT NOT NULL DEFAULT 'eur',
    subtotal            INTEGER NOT NULL DEFAULT 0,
    tax                 INTEGER NOT NULL DEFAULT 0,
    total               INTEGER NOT NULL DEFAULT 0,
    amount_paid         INTEGER NOT NULL DEFAULT 0,
    amount_due          INTEGER NOT NULL DEFAULT 0,
    payment_status      TEXT NOT NULL DEFAULT 'unpaid',
    issue_date          TEXT NOT NULL,
    due_date            TEXT NOT NULL,
    payment_method      TEXT NOT NULL DEFAULT '',
    notes               TEXT NOT NULL DEFAULT '',
    created_by          TEXT NOT NULL DEFAULT '',
    overdue_notified_at TEXT,
    created_at          TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at          TEXT NOT NULL DEFAULT (datetime('now')),
    CHECK (amount_paid >= 0 AND amount_paid <= total),
    UNIQUE (tenant_id, year, sequence)
);

CREATE INDEX IF NOT EXISTS idx_tally_invoices_tenant_issue ON tally_invoices (tenant_id, issue_date);
CREATE INDEX IF NOT EXISTS idx_tally_invoices_due ON tally_invoices (payment_status, due_date);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tally_invoices`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tally_payments",
			Version: "20250301000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tally_payments (
    id          TEXT PRIMARY KEY,
    tenant_id   TEXT NOT NULL,
    invoice_id  TEXT NOT NULL REFERENCES tally_invoices (id) ON DELETE CASCADE,
    amount      INTEGER NOT NULL CHECK (amount > 0),
    currency    TEXT NOT NULL DEFAULT 'eur',
    method      TEXT NOT NULL DEFAULT '',
    paid_at     TEXT NOT NULL,
    reference   TEXT NOT NULL DEFAULT '',
    notes       TEXT NOT NULL DEFAULT '',
    recorded_by TEXT NOT NULL DEFAULT '',
    created_at  TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_tally_payments_invoice ON tally_payments (invoice_id);
CREATE INDEX IF NOT EXISTS idx_tally_payments_tenant_paid ON tally_payments (tenant_id, paid_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tally_payments`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tally_scores",
			Version: "20250301000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tally_scores (
    id         TEXT PRIMARY KEY,
    tenant_id  TEXT NOT NULL,
    user_id    TEXT NOT NULL,
    points     INTEGER NOT NULL CHECK (points > 0),
    period     TEXT NOT NULL,
    reason     TEXT NOT NULL DEFAULT '',
    source     TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_tally_scores_user_period ON tally_scores (tenant_id, user_id, period);
CREATE INDEX IF NOT EXISTS idx_tally_scores_tenant_period ON tally_scores (tenant_id, period);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tally_scores`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tally_rewards",
			Version: "20250301000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tally_rewards (
    id            TEXT PRIMARY KEY,
    tenant_id     TEXT NOT NULL,
    name          TEXT NOT NULL,
    description   TEXT NOT NULL DEFAULT '',
    image_url     TEXT NOT NULL DEFAULT '',
    cost_lifetime INTEGER NOT NULL DEFAULT 0,
    cost_monthly  INTEGER NOT NULL DEFAULT 0,
    quantity      INTEGER NOT NULL DEFAULT 1,
    claimed       INTEGER NOT NULL DEFAULT 0,
    available     INTEGER NOT NULL DEFAULT 1,
    created_at    TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at    TEXT NOT NULL DEFAULT (datetime('now')),
    CHECK (claimed >= 0 AND (quantity = -1 OR claimed <= quantity))
);

CREATE INDEX IF NOT EXISTS idx_tally_rewards_tenant ON tally_rewards (tenant_id, name);

CREATE TABLE IF NOT EXISTS tally_redemptions (
    id             TEXT PRIMARY KEY,
    tenant_id      TEXT NOT NULL,
    reward_id      TEXT NOT NULL,
    reward_name    TEXT NOT NULL DEFAULT '',
    user_id        TEXT NOT NULL,
    status         TEXT NOT NULL DEFAULT 'pending',
    points_total   INTEGER NOT NULL DEFAULT 0,
    points_monthly INTEGER NOT NULL DEFAULT 0,
    pickup         TEXT NOT NULL DEFAULT '',
    delivery       TEXT,
    admin_note     TEXT NOT NULL DEFAULT '',
    reviewed_by    TEXT NOT NULL DEFAULT '',
    reviewed_at    TEXT,
    delivered_at   TEXT,
    created_at     TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at     TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_tally_redemptions_open ON tally_redemptions (reward_id, user_id)
    WHERE status IN ('pending', 'approved');
CREATE INDEX IF NOT EXISTS idx_tally_redemptions_tenant_status ON tally_redemptions (tenant_id, status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tally_redemptions; DROP TABLE IF EXISTS tally_rewards`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tally_notifications",
			Version: "20250301000006",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tally_notifications (
    id         TEXT PRIMARY KEY,
    tenant_id  TEXT NOT NULL,
    user_id    TEXT NOT NULL,
    kind       TEXT NOT NULL,
    title      TEXT NOT NULL DEFAULT '',
    message    TEXT NOT NULL DEFAULT '',
    link       TEXT NOT NULL DEFAULT '',
    read       INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_tally_notifications_user ON tally_notifications (tenant_id, user_id, created_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tally_notifications`)
				return err
			},
		},
	)
}
