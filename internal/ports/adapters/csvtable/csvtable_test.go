package csvtable

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_HeaderSemicolon(t *testing.T) {
	in := "\ufeffVideoID;FrameNo;Phase\n269;0;1\n\n269; 120 ;3\n"
	tab, err := Parse(strings.NewReader(in), ';', true)
	require.NoError(t, err)
	assert.Equal(t, []string{"VideoID", "FrameNo", "Phase"}, tab.Header)
	require.Len(t, tab.Rows, 2)
	assert.Equal(t, "120", tab.Rows[1].Values["FrameNo"])
	assert.Equal(t, 4, tab.Rows[1].Line)
}

func TestParse_Headerless(t *testing.T) {
	tab, err := Parse(strings.NewReader("0,not_initialized\n1,Incision\n"), ',', false)
	require.NoError(t, err)
	require.Len(t, tab.Rows, 2)
	v, ok := tab.Rows[1].Get("1")
	assert.True(t, ok)
	assert.Equal(t, "Incision", v)
	assert.Nil(t, tab.Header)
}

func TestParse_RaggedRowsAndQuotes(t *testing.T) {
	in := "caseId,comment,frame,endFrame\n4,\"Lens Implantation\",10,20,extra\n4,Idle,21\n"
	tab, err := Parse(strings.NewReader(in), ',', true)
	require.NoError(t, err)
	require.Len(t, tab.Rows, 2)
	assert.Equal(t, "Lens Implantation", tab.Rows[0].Values["comment"])
	_, ok := tab.Rows[1].Get("endFrame")
	assert.False(t, ok)
}

func TestParse_EmptyWithHeader(t *testing.T) {
	_, err := Parse(strings.NewReader(""), ',', true)
	require.Error(t, err)
}

func TestReadTable_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "case_1.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n1,2\n"), 0o644))
	tab, err := New().ReadTable(path, ',', true)
	require.NoError(t, err)
	assert.Equal(t, "2", tab.Rows[0].Values["b"])

	_, err = New().ReadTable(filepath.Join(t.TempDir(), "missing.csv"), ',', true)
	require.Error(t, err)
}
