// Package query builds the SELECT statements an export sends and validates
// them with the TiDB parser before they reach the server.
package query

import (
	"errors"
	"fmt"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/mysql"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver" // required for the tidb parser
)

var (
	errNonSelectStmt = errors.New("is not a SELECT statement type")
	errNotSingleTbl  = errors.New("does not read exactly one table")
)

// ParseSelect parses the given SQL query as a SELECT statement and returns
// AST (Abstract syntax tree) node if there is no error.
func ParseSelect(query string) (*ast.SelectStmt, error) {
	p := parser.New()
	p.SetSQLMode(mysql.ModeStrictAllTables)

	node, err := p.ParseOneStmt(query, "", "")
	if err != nil {
		return nil, fmt.Errorf("given query: %s is invalid: %w", query, err)
	}
	stmt, ok := node.(*ast.SelectStmt)
	if !ok {
		return nil, fmt.Errorf("query: %s %w", query, errNonSelectStmt)
	}

	return stmt, nil
}

// TableOf returns the schema and name of the only table a SELECT reads.
func TableOf(stmt *ast.SelectStmt) (string, string, error) {
	if stmt.From == nil || stmt.From.TableRefs == nil {
		return "", "", errNotSingleTbl
	}
	join := stmt.From.TableRefs
	if join.Right != nil {
		return "", "", errNotSingleTbl
	}
	src, ok := join.Left.(*ast.TableSource)
	if !ok {
		return "", "", errNotSingleTbl
	}
	tbl, ok := src.Source.(*ast.TableName)
	if !ok {
		return "", "", errNotSingleTbl
	}

	return tbl.Schema.O, tbl.Name.O, nil
}
