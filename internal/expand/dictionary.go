package expand

import "strings"

// DictEntry is a static expansion for a known search term.
type DictEntry struct {
	Expansion string
	Language  string
}

// dictionary maps normalized role/title abbreviations and domain terms to
// their expansions. English and French are seeded; dictionary hits are
// free and bypass both the cache and the LLM.
var dictionary = map[string]DictEntry{
	// English roles
	"ceo":       {Expansion: "CEO chief executive officer company leader founder president", Language: "eng"},
	"cto":       {Expansion: "CTO chief technology officer technical lead head of engineering", Language: "eng"},
	"cfo":       {Expansion: "CFO chief financial officer finance director head of finance", Language: "eng"},
	"coo":       {Expansion: "COO chief operating officer operations director", Language: "eng"},
	"vp":        {Expansion: "VP vice president senior executive director", Language: "eng"},
	"hr":        {Expansion: "HR human resources people operations talent recruiter", Language: "eng"},
	"founder":   {Expansion: "founder co-founder entrepreneur startup owner CEO", Language: "eng"},
	"engineer":  {Expansion: "engineer developer software programmer technical", Language: "eng"},
	"developer": {Expansion: "developer engineer software programmer coder", Language: "eng"},
	"sales":     {Expansion: "sales business development account executive commercial", Language: "eng"},
	"marketing": {Expansion: "marketing growth brand communications digital", Language: "eng"},
	"designer":  {Expansion: "designer UX UI product design creative graphic", Language: "eng"},
	"investor":  {Expansion: "investor venture capital VC business angel fund partner", Language: "eng"},
	"lawyer":    {Expansion: "lawyer attorney legal counsel law", Language: "eng"},
	"recruiter": {Expansion: "recruiter talent acquisition headhunter HR sourcing", Language: "eng"},

	// French roles
	"pdg":         {Expansion: "PDG Président Directeur Général CEO chef d'entreprise dirigeant fondateur", Language: "fra"},
	"dg":          {Expansion: "DG Directeur Général general manager direction dirigeant", Language: "fra"},
	"drh":         {Expansion: "DRH Directeur des Ressources Humaines HR responsable RH", Language: "fra"},
	"rh":          {Expansion: "RH ressources humaines recrutement talent HR", Language: "fra"},
	"commercial":  {Expansion: "commercial vente business développement sales account", Language: "fra"},
	"fondateur":   {Expansion: "fondateur créateur entrepreneur startup dirigeant founder", Language: "fra"},
	"ingénieur":   {Expansion: "ingénieur développeur technique engineer developer", Language: "fra"},
	"développeur": {Expansion: "développeur ingénieur logiciel programmeur developer", Language: "fra"},
	"avocat":      {Expansion: "avocat juriste conseil juridique lawyer legal", Language: "fra"},
	"comptable":   {Expansion: "comptable expert-comptable finance gestion accountant", Language: "fra"},
}

// LookupDictionary returns the static expansion for term, matching on the
// trimmed, case-folded form.
func LookupDictionary(term string) (DictEntry, bool) {
	entry, ok := dictionary[strings.ToLower(strings.TrimSpace(term))]
	return entry, ok
}
