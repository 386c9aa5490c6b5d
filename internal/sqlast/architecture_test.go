package sqlast

import (
	"testing"

	"anchorgen/testutil"
)

func TestSQLASTImportsNoInternalPackages(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InternalImportForbidden, "sqlast is a leaf package")
}
