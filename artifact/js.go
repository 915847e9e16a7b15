package artifact

import (
	"bytes"
	"regexp"
)

var (
	exportDecl    = regexp.MustCompile(`(?m)^([ \t]*)export\s+(async\s+function\b|function\b|class\b|const\b|let\b|var\b)`)
	exportList    = regexp.MustCompile(`(?m)^[ \t]*export\s*\{[^}]*\}[ \t]*;?[ \t]*\r?\n?`)
	exportDefault = regexp.MustCompile(`(?m)^[ \t]*export\s+default\s+[^;\n]*;?[ \t]*\r?\n?`)
	metaURLArg    = regexp.MustCompile(`,\s*import\.meta\.url`)
	metaURL       = regexp.MustCompile(`\bimport\.meta\.url\b`)
)

// Glue is appended to every processed script. The script runs as the body of
// an async function taking (wasm_blob, ref_obj); it instantiates the module
// from the blob and hands the exports back through ref_obj.wasm.
const Glue = `
const __playbuild_exports = await __wbg_init(new Response(wasm_blob, { headers: { "Content-Type": "application/wasm" } }));
ref_obj.wasm = Object.assign({}, __playbuild_exports, typeof __exit === "function" ? { __exit } : {});
`

// ProcessJS strips module-only syntax from a wasm-bindgen glue script and
// appends Glue. All other content is left byte for byte.
func ProcessJS(js []byte) []byte {
	out := exportList.ReplaceAll(js, nil)
	out = exportDefault.ReplaceAll(out, nil)
	out = exportDecl.ReplaceAll(out, []byte("${1}${2}"))
	out = metaURLArg.ReplaceAll(out, nil)
	out = metaURL.ReplaceAll(out, []byte("undefined"))

	if len(out) > 0 && !bytes.HasSuffix(out, []byte("\n")) {
		out = append(out, '\n')
	}
	return append(out, Glue...)
}
