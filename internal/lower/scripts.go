package lower

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// The generated scripts assume a POSIX shell with jq and the gh CLI, which
// every hosted runner provides. They read their inputs from env only, so no
// expression is ever spliced into shell text.

func restoreScript(cycle, namespace string) string {
	return fmt.Sprintf(`mkdir -p %[3]s
name="%[1]s-%[2]s-iter-$((WP_ITERATION - 1))-run-${WP_PREV_RUN}"
gh run download "$WP_PREV_RUN" --repo "$GITHUB_REPOSITORY" --name "$name" --dir %[3]s
`, namespace, cycle, StateDir(cycle))
}

func materializeScript(cycle string, maxIters *int) string {
	capValue := "-1"
	if maxIters != nil {
		capValue = strconv.Itoa(*maxIters)
	}
	return fmt.Sprintf(`WP_KEY="${WP_INPUT_KEY:-$WP_DEFAULT_KEY}"
mkdir -p %[1]s
file=%[1]s/state.json
iteration="${WP_ITERATION:-0}"
if [ ! -f "$file" ]; then
  jq -cn --arg key "$WP_KEY" --argjson cap %[2]s \
    '{iteration: 0, key: $key, prevInvocationId: "", done: false, maxIters: $cap, outputs: {}}' > "$file"
fi
jq -c --argjson it "$iteration" --arg key "$WP_KEY" --arg prev "${WP_PREV_RUN:-}" \
  '.iteration = $it | .key = $key | .prevInvocationId = $prev | .done = false' "$file" > "$file.tmp"
mv "$file.tmp" "$file"
{
  echo "iteration=$iteration"
  echo "key=$WP_KEY"
  echo "prev_run=${WP_PREV_RUN:-}"
  echo "state=$(cat "$file")"
} >> "$GITHUB_OUTPUT"
`, StateDir(cycle), capValue)
}

// captureScript serializes the declared outputs of unit, merged over the
// captures of its body-internal dependencies, into one JSON object
// {unit: {output: value}}. Terminal members therefore carry every
// capture of the iteration.
func captureScript(unit string, outputs []string, upstream int) string {
	var args, merge []string
	for i := range upstream {
		args = append(args, fmt.Sprintf(`--argjson up%d "$WP_UP_%d"`, i, i))
		merge = append(merge, fmt.Sprintf("$up%d", i))
	}
	fields := make([]string, len(outputs))
	for i, o := range outputs {
		args = append(args, fmt.Sprintf(`--arg o%d "$WP_OUT_%d"`, i, i))
		fields[i] = fmt.Sprintf("%s: $o%d", jqKey(o), i)
	}
	merge = append(merge, fmt.Sprintf("{%s: {%s}}", jqKey(unit), strings.Join(fields, ", ")))

	cmd := "jq -cn"
	if len(args) > 0 {
		cmd += " " + strings.Join(args, " ")
	}
	return fmt.Sprintf("echo \"json=$(%s '%s')\" >> \"$GITHUB_OUTPUT\"\n", cmd, strings.Join(merge, " * "))
}

func collectScript(cycle string, captures int) string {
	var args, merge []string
	merge = append(merge, "(.outputs // {})")
	for i := range captures {
		args = append(args, fmt.Sprintf(`--argjson c%d "$WP_CAPTURE_%d"`, i, i))
		merge = append(merge, fmt.Sprintf("$c%d", i))
	}
	cmd := "jq -c"
	if len(args) > 0 {
		cmd += " " + strings.Join(args, " ")
	}
	return fmt.Sprintf(`mkdir -p %[1]s
file=%[1]s/state.json
printf '%%s' "$WP_STATE" | %[2]s '.outputs = (%[3]s)' > "$file"
echo "file=$file" >> "$GITHUB_OUTPUT"
`, StateDir(cycle), cmd, strings.Join(merge, " * "))
}

// predicateScript runs the opaque predicate body in a subshell. Exit status
// 0 means satisfied; anything else, including a crash, means not.
func predicateScript(body string) string {
	body = strings.TrimRight(body, "\n")
	return fmt.Sprintf(`set +e
(
%s
)
status=$?
if [ "$status" -eq 0 ]; then
  echo "satisfied=true" >> "$GITHUB_OUTPUT"
else
  echo "satisfied=false" >> "$GITHUB_OUTPUT"
fi
`, body)
}

// decideScript mirrors protocol.Decide:
//
//	done = satisfied || (cap present && iteration >= cap-1)
//
// The cap check is only generated when the cycle has a cap, and its bound
// is computed at compile time.
func decideScript(cycle string, maxIters *int, predicate bool) string {
	var b strings.Builder
	b.WriteString("done=false\n")
	if predicate {
		b.WriteString(`if [ "$WP_SATISFIED" = "true" ]; then done=true; fi` + "\n")
	}
	if maxIters != nil {
		fmt.Fprintf(&b, `if [ "$WP_ITERATION" -ge %d ]; then done=true; fi`+"\n", *maxIters-1)
	}
	fmt.Fprintf(&b, `continue=true
if [ "$done" = "true" ]; then continue=false; fi
file=%s/state.json
jq -c --argjson done "$done" '.done = $done' "$file" > "$file.tmp"
mv "$file.tmp" "$file"
{
  echo "done=$done"
  echo "continue=$continue"
  echo "iteration=$WP_ITERATION"
  echo "key=$WP_KEY"
} >> "$GITHUB_OUTPUT"
`, StateDir(cycle))
	return b.String()
}

func dispatchScript(cycle, workflowFile string) string {
	return fmt.Sprintf(`gh workflow run %s --repo "$GITHUB_REPOSITORY" --ref "$GITHUB_REF_NAME" \
  -f wp_construct=%s \
  -f wp_iteration="$((WP_ITERATION + 1))" \
  -f wp_key="$WP_KEY" \
  -f wp_prev_run="$GITHUB_RUN_ID"
`, shellQuote(workflowFile), cycle)
}

// jqKey renders name as a jq object key.
func jqKey(name string) string {
	b, _ := json.Marshal(name)
	return string(b)
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
