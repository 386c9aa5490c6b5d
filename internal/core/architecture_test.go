package core

import (
	"testing"

	"anchorgen/testutil"
)

// TestCoreStaysPure keeps query synthesis independent of I/O adapters.
func TestCoreStaysPure(t *testing.T) {
	forbidden := testutil.PrefixForbidden(
		"anchorgen/internal/api",
		"anchorgen/internal/blob",
		"anchorgen/internal/config",
		"anchorgen/internal/infra",
		"anchorgen/internal/metadata",
		"anchorgen/internal/warehouse",
		"database/sql",
		"net/http",
	)
	testutil.AssertNoDirectImports(t, ".", forbidden, "core must not depend on adapters")
}
