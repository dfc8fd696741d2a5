package pubchem

import "strings"

// PUG-View record shapes, limited to the slices the walker inspects.

type viewResponse struct {
	Record viewRecord `json:"Record"`
}

type viewRecord struct {
	Section []viewSection `json:"Section"`
}

type viewSection struct {
	TOCHeading  string            `json:"TOCHeading"`
	Section     []viewSection     `json:"Section"`
	Information []viewInformation `json:"Information"`
}

type viewInformation struct {
	StringValue string `json:"StringValue"`
	StringList  struct {
		String []string `json:"String"`
	} `json:"StringList"`
	StringWithMarkup []struct {
		String string `json:"String"`
	} `json:"StringWithMarkup"`
	Reference []struct {
		URL string `json:"URL"`
	} `json:"Reference"`
}

// walker accumulates fields of interest while descending the section tree.
type walker struct {
	synonyms []string
	formula  string
	cas      string
	hazards  []string
	sdsLink  string
}

// walk descends the section tree. Identifier headings are inspected one
// level below their parent, safety headings at the node itself; every
// subtree is then descended in turn so nesting depth does not matter.
func (w *walker) walk(sections []viewSection) {
	for _, sec := range sections {
		switch sec.TOCHeading {
		case "Names and Identifiers", "Synonyms", "Other Identifiers":
			for _, s2 := range sec.Section {
				switch s2.TOCHeading {
				case "Synonyms", "Depositor-Supplied Synonyms", "Other Names":
					for _, info := range s2.Information {
						w.synonyms = append(w.synonyms, info.StringList.String...)
					}
				case "Molecular Formula":
					for _, info := range s2.Information {
						if info.StringValue != "" {
							w.formula = info.StringValue
						}
					}
				case "CAS":
					for _, info := range s2.Information {
						if info.StringValue != "" {
							w.cas = info.StringValue
						}
					}
				}
			}
		}
		if sec.TOCHeading == "GHS Classification" {
			for _, info := range sec.Information {
				for _, item := range info.StringWithMarkup {
					txt := strings.TrimSpace(item.String)
					if txt != "" && !contains(w.hazards, txt) {
						w.hazards = append(w.hazards, txt)
					}
				}
			}
		}
		switch sec.TOCHeading {
		case "Safety Sources", "Safety and Hazard Properties":
			for _, info := range sec.Information {
				for _, ref := range info.Reference {
					if ref.URL != "" && w.sdsLink == "" {
						w.sdsLink = ref.URL
					}
				}
			}
		}
	}
	for _, sec := range sections {
		if len(sec.Section) > 0 {
			w.walk(sec.Section)
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
