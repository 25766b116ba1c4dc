package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/agencyhub-backend/pkg/enums"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no %s migration file found", suffix)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestContractsMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "create_contracts")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS contracts",
		"CONSTRAINT contracts_contract_number_key UNIQUE (contract_number)",
		"CHECK (total_amount >= 0)",
		"deleted_at timestamptz NULL",
		"WHERE deleted_at IS NULL AND status = 'active'",
		"DROP TABLE IF EXISTS contracts",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestContractsMigrationCoversEveryStatusAndType(t *testing.T) {
	content := readMigration(t, "create_contracts")

	statuses := []enums.ContractStatus{
		enums.ContractStatusDraft,
		enums.ContractStatusPendingReview,
		enums.ContractStatusPendingSignature,
		enums.ContractStatusSigned,
		enums.ContractStatusActive,
		enums.ContractStatusExpired,
		enums.ContractStatusCancelled,
		enums.ContractStatusTerminated,
	}
	for _, s := range statuses {
		if !strings.Contains(content, "'"+s.String()+"'") {
			t.Errorf("status %q missing from check constraint", s)
		}
	}

	types := []enums.ContractType{
		enums.ContractTypeService,
		enums.ContractTypeRental,
		enums.ContractTypeCollaboration,
		enums.ContractTypePartnership,
		enums.ContractTypeOther,
	}
	for _, ct := range types {
		if !strings.Contains(content, "'"+ct.String()+"'") {
			t.Errorf("contract type %q missing from check constraint", ct)
		}
	}
}

func TestContractHistoryMigrationReferencesContracts(t *testing.T) {
	content := readMigration(t, "create_contract_history")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS contract_history",
		"contract_id uuid NOT NULL REFERENCES contracts(id)",
		"ON contract_history (contract_id, created_at DESC)",
		"DROP TABLE IF EXISTS contract_history",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestOutboxMigrationHasDedupeKey(t *testing.T) {
	content := readMigration(t, "create_outbox")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS outbox_events",
		"CONSTRAINT outbox_events_dedupe_key_key UNIQUE (dedupe_key)",
		"CREATE TABLE IF NOT EXISTS outbox_dlq",
		"WHERE published_at IS NULL",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}
