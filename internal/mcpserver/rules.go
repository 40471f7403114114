package mcpserver

// LinkRules describes how links are classified, resolved and repaired, so
// LLM consumers can reason about tool results.
const LinkRules = `# linkmend Link Rules

## Documents

Markdown files (` + "`" + `.md` + "`" + `) and Jupyter notebooks (` + "`" + `.ipynb` + "`" + `) are indexed.
In notebooks only markdown cells are read; code and raw cells are ignored.

## Link kinds

Every inline link, image and reference definition is classified by its target:

| Target                           | Kind     |
|----------------------------------|----------|
| ` + "`" + `http://` + "`" + `, ` + "`" + `https://` + "`" + `           | url      |
| ` + "`" + `#section` + "`" + `                     | anchor   |
| ` + "`" + `mailto:` + "`" + `                      | mailto   |
| ` + "`" + `javascript:` + "`" + `                  | protocol |
| everything else                  | file     |

Only file links are checked. Links inside code spans and fenced code blocks
are not links.

## Resolution

Relative targets are percent-decoded and resolved against the directory of
the document holding them. ` + "`" + `#fragment` + "`" + ` and ` + "`" + `?query` + "`" + ` suffixes are dropped.
Absolute targets are used as written, minus any fragment. Targets with another
scheme (` + "`" + `ftp:` + "`" + `, ` + "`" + `vscode:` + "`" + `) are file links kept exactly as written. A file link is broken when its target
is neither a file nor a directory.

## Candidates

For a broken target ` + "`" + `parent/name.ext` + "`" + ` the workspace is searched for:

1. **exact**: files ending in ` + "`" + `parent/name.ext` + "`" + `
2. **loose**: files named ` + "`" + `name.ext` + "`" + ` anywhere

Both tiers also try the notebook/Markdown twin (` + "`" + `name.ipynb` + "`" + ` for ` + "`" + `name.md` + "`" + ` and
the reverse). Names are compared after Unicode NFC normalization.

A replacement is chosen automatically only when there is exactly one exact
candidate, or no exact candidate and exactly one loose one. Anything else is
ambiguous and needs an explicit ` + "`" + `replacement` + "`" + `.

## Rewriting

Repairs and moves write relative paths from the document's directory, keep
the link text and any ` + "`" + `#fragment` + "`" + `, and leave URLs and code untouched.
Destinations containing spaces are wrapped in ` + "`" + `<...>` + "`" + `.
`
