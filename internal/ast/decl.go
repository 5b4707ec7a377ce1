package ast

// Decl is a top-level or body declaration: a *Job or a *Cycle.
type Decl interface {
	declNode()
	DeclName() Ident
	DeclSpan() Span
}

// JobKind distinguishes plain jobs from agent-flavored jobs.
type JobKind uint8

const (
	KindJob JobKind = iota + 1
	KindAgent
)

func (k JobKind) String() string {
	switch k {
	case KindJob:
		return "job"
	case KindAgent:
		return "agent"
	default:
		panic("ast: unknown job kind")
	}
}

// Job is a named unit of work.
type Job struct {
	Kind        JobKind       `json:"kind"`
	Name        Ident         `json:"name"`
	Needs       []Ident       `json:"needs,omitempty"`
	RunsOn      string        `json:"runs_on,omitempty"`
	If          string        `json:"if,omitempty"`
	Uses        *Ident        `json:"uses,omitempty"` // template
	Prompt      string        `json:"prompt,omitempty"`
	Env         []KV          `json:"env,omitempty"`
	Outputs     []*OutputDecl `json:"outputs,omitempty"`
	Steps       []*Step       `json:"steps,omitempty"`
	Refs        []OutputRef   `json:"refs,omitempty"`
	Comparisons []Comparison  `json:"comparisons,omitempty"`
	Span        Span          `json:"span"`
}

func (*Job) declNode()          {}
func (j *Job) DeclName() Ident { return j.Name }
func (j *Job) DeclSpan() Span  { return j.Span }

// Cycle is a bounded loop over a sub-graph of jobs.
//
// At least one of MaxIters and Until must be set; the validator enforces it.
type Cycle struct {
	Name     Ident   `json:"name"`
	MaxIters *IntLit `json:"max_iters,omitempty"`
	Until    *Script `json:"until,omitempty"`
	Key      *Script `json:"key,omitempty"` // concurrency key expression
	Body     []Decl  `json:"body"`
	Span     Span    `json:"span"`
}

func (*Cycle) declNode()          {}
func (c *Cycle) DeclName() Ident { return c.Name }
func (c *Cycle) DeclSpan() Span  { return c.Span }

// Jobs returns the body jobs, skipping nested cycles.
func (c *Cycle) Jobs() []*Job {
	jobs := make([]*Job, 0, len(c.Body))
	for _, d := range c.Body {
		if j, ok := d.(*Job); ok {
			jobs = append(jobs, j)
		}
	}
	return jobs
}

// IntLit is an integer literal with its span.
type IntLit struct {
	Value int  `json:"value"`
	Span  Span `json:"span"`
}

// Script is an opaque body or expression.
type Script struct {
	Body string `json:"body"`
	Span Span   `json:"span"`
}

// OutputDecl is a value a job promises to produce.
type OutputDecl struct {
	Name  Ident    `json:"name"`
	Type  TypeExpr `json:"type"`
	Value string   `json:"value,omitempty"`
	Span  Span     `json:"span"`
}

// Step is one opaque step of a job.
type Step struct {
	Name string `json:"name,omitempty"`
	ID   string `json:"id,omitempty"`
	If   string `json:"if,omitempty"`
	Uses string `json:"uses,omitempty"`
	Run  string `json:"run,omitempty"`
	With []KV   `json:"with,omitempty"`
	Env  []KV   `json:"env,omitempty"`
	Span Span   `json:"span"`
}

// OutputRef is a `needs.<unit>.outputs.<output>` access.
type OutputRef struct {
	Unit   string `json:"unit"`
	Output string `json:"output"`
	Span   Span   `json:"span"`
}

// Comparison is a binary comparison found in a condition expression.
type Comparison struct {
	Op    string  `json:"op"`
	Left  Operand `json:"left"`
	Right Operand `json:"right"`
	Span  Span    `json:"span"`
}

// Operand is either an output reference or a literal.
type Operand struct {
	Ref     *OutputRef `json:"ref,omitempty"`
	Literal *Literal   `json:"literal,omitempty"`
}

// LiteralKind is the lexical class of a literal operand.
type LiteralKind uint8

const (
	LitString LiteralKind = iota + 1
	LitInt
	LitFloat
	LitBool
)

// Literal is a constant operand in a comparison.
type Literal struct {
	Kind  LiteralKind `json:"kind"`
	Value string      `json:"value"`
}
