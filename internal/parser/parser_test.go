package parser

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/starford/linkmend/internal/models"
)

const base = "/home/user/docs"

func TestExtract_DropsURLsKeepsFiles(t *testing.T) {
	got := Extract("[link](https://example.com) ![image](image.png) [relative](../file.md)", base)
	require.Equal(t, []string{
		filepath.Join(base, "image.png"),
		filepath.Join(base, "../file.md"),
	}, got)
}

func TestExtract_PercentEncodedSpace(t *testing.T) {
	got := Extract("[space](Static%20Shock.md)", base)
	require.Equal(t, []string{"/home/user/docs/Static Shock.md"}, got)
}

func TestExtract_PercentEncodedUnicode(t *testing.T) {
	got := Extract("[u](%C3%A9t%C3%A9.md)", base)
	require.Equal(t, []string{"/home/user/docs/été.md"}, got)
}

func TestExtract_AngleBracketTarget(t *testing.T) {
	got := Extract("[a](<my file.md>)", base)
	require.Equal(t, []string{"/home/user/docs/my file.md"}, got)
}

func TestExtract_LiteralSpaceIsNotALink(t *testing.T) {
	got := Extract("[a](my file.md)", base)
	require.Empty(t, got)
}

func TestExtract_SkipsNonFileKinds(t *testing.T) {
	src := "[a](#top) [b](mailto:x@example.com) [c](javascript:void(0)) [e](HTTPS://EXAMPLE.COM)"
	require.Empty(t, Extract(src, base))
}

func TestExtract_OtherSchemesKeptAsWritten(t *testing.T) {
	src := "[d](ftp://host/x) [v](vscode://file/a%20b.md)"
	require.Equal(t, []string{"ftp://host/x", "vscode://file/a%20b.md"}, Extract(src, base))
}

func TestExtract_DuplicatesPreservedInOrder(t *testing.T) {
	got := Extract("[a](x.md) [b](y.md) [c](x.md)", base)
	require.Equal(t, []string{
		"/home/user/docs/x.md",
		"/home/user/docs/y.md",
		"/home/user/docs/x.md",
	}, got)
}

func TestExtract_ReferenceLinks(t *testing.T) {
	src := "See [API][ref] and [gone][missing].\n\n[ref]: api.md\n"
	require.Equal(t, []string{"/home/user/docs/api.md"}, Extract(src, base))
}

func TestExtract_SkipsCode(t *testing.T) {
	src := "" +
		"Inline code: `[Link](./ignored-inline.md)`\n" +
		"\n" +
		"```\n" +
		"[Link](./ignored-fence.md)\n" +
		"```\n" +
		"\n" +
		"Real: [OK](./real.md)\n"
	require.Equal(t, []string{"/home/user/docs/real.md"}, Extract(src, base))
}

func TestExtract_AbsoluteKeptAsWritten(t *testing.T) {
	require.Equal(t, []string{"/etc/notes.md"}, Extract("[abs](/etc/notes.md)", base))
}

func TestExtract_AbsoluteFragmentDropped(t *testing.T) {
	require.Equal(t, []string{"/etc/notes%20x.md"}, Extract("[abs](/etc/notes%20x.md#h)", base))
}

func TestExtract_FragmentDropped(t *testing.T) {
	require.Equal(t, []string{"/home/user/docs/file.md"}, Extract("[s](file.md#section)", base))
}

func TestExtract_EscapesTree(t *testing.T) {
	require.Equal(t, []string{"/etc/passwd"}, Extract("[x](../../../../etc/passwd)", base))
}

func TestExtract_Idempotent(t *testing.T) {
	src := "![i](a.png) [b](../b.md) [c](c%20d.md) [b](../b.md)"
	require.Equal(t, Extract(src, base), Extract(src, base))
}

func TestExtractReferences_RecordsRawAndDocument(t *testing.T) {
	refs := ExtractReferences("[a](<a b.md>)", base, "/home/user/docs/index.md")
	require.Len(t, refs, 1)
	require.Equal(t, models.LinkReference{
		Document: "/home/user/docs/index.md",
		Raw:      "a b.md",
		Kind:     models.KindFile,
		Target:   "/home/user/docs/a b.md",
	}, refs[0])
}

func TestClassify(t *testing.T) {
	cases := map[string]models.LinkKind{
		"http://x":          models.KindURL,
		"https://x":         models.KindURL,
		"#anchor":           models.KindAnchor,
		"mailto:a@b":        models.KindMailto,
		"javascript:void()": models.KindProtocol,
		"vscode://file/x":   models.KindFile,
		"ftp://host/x":      models.KindFile,
		"notes/a.md":        models.KindFile,
		"/abs/a.md":         models.KindFile,
		"C:file.md":         models.KindFile,
	}
	for in, want := range cases {
		require.Equal(t, want, Classify(in), in)
	}
}

func TestKindOf(t *testing.T) {
	require.Equal(t, models.DocumentNotebook, KindOf("/w/a.ipynb"))
	require.Equal(t, models.DocumentNotebook, KindOf("/w/A.IPYNB"))
	require.Equal(t, models.DocumentMarkdown, KindOf("/w/a.md"))
}

func TestExtractDocument_UsesDocumentDir(t *testing.T) {
	refs := ExtractDocument("/w/sub/index.md", "[a](../a.md)")
	require.Len(t, refs, 1)
	require.Equal(t, "/w/a.md", refs[0].Target)
	require.Equal(t, "/w/sub/index.md", refs[0].Document)
}
