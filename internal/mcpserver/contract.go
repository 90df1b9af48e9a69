package mcpserver

// NoteFormatContract describes how corenote stores plain-text notes so that
// LLM consumers can create versions that land in the right directory.
const NoteFormatContract = `# Corenote Note Format

A note is plain UTF-8 text. Every save creates a new immutable version.

## Directory

The first line of the value names the directory of the note:

- Leading and trailing dots are removed, as are dots next to a "/".
- Repeated "/" collapse into one; "/" at either end is dropped.
- When nothing usable is left the directory is ` + "`untitled`" + `.

Examples:

| First line        | Directory     |
|-------------------|---------------|
| ` + "`Groceries`" + `       | Groceries     |
| ` + "`work//q3/plan`" + `   | work/q3/plan  |
| ` + "`../etc`" + `          | etc           |
| ` + "`...`" + `             | untitled      |

## Versions

A version is identified by its directory and its creation time in Unix
milliseconds. It is stored at ` + "`{dir}/{createdAt}.txt`" + `. Two versions
of the same directory never share a creation time; a new save gets a time
after the newest existing version.

## Retention

After a save, bursts of versions created close together are thinned out
so that only a handful of recent undo steps survive. Versions separated by
long pauses are kept.

## Rules

1. The value is UTF-8 text without NUL characters. A blank value is rejected.
2. Keep the first line short: it is a path, not a sentence.
3. Editing a note means saving the full new value; there is no patching.
`
