package main

import (
	"fmt"
	"strings"

	"github.com/dgnsrekt/narrator/internal/voices"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
)

var voicesLang string

var voicesCmd = &cobra.Command{
	Use:     "voices",
	Short:   "List the available voices",
	Long:    paragraph(fmt.Sprintf("\nList voices grouped by %s. The first letter of a voice picks the family, the second its gender.", keyword("language family"))),
	Example: paragraph("narrator voices\nnarrator voices --lang b\nnarrator voices --lang ja"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		table := voices.Default()
		families, err := filterFamilies(table.Families(), voicesLang)
		if err != nil {
			return err
		}

		for i, fam := range families {
			if i > 0 {
				fmt.Println()
			}
			fmt.Printf("%s %s\n", headerStyle.Render(fam.Language), faintStyle.Render(fmt.Sprintf("(%s, %s)", fam.Code, fam.Tag)))
			for _, v := range table.ByFamily(fam.Code) {
				fmt.Printf("  %s %s %s\n",
					keyword(runewidth.FillRight(v.Name, 14)),
					runewidth.FillRight(v.Grade, 4),
					faintStyle.Render(v.Gender()))
			}
		}
		return nil
	},
}

func init() {
	voicesCmd.Flags().StringVar(&voicesLang, "lang", "", "family code (a, b, j, ...) or language tag (en, en-GB, ja)")
}

// filterFamilies keeps the families matching lang, either by family code or
// by BCP-47 tag.
func filterFamilies(all []voices.Family, lang string) ([]voices.Family, error) {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return all, nil
	}

	for _, fam := range all {
		if strings.EqualFold(fam.Code, lang) {
			return []voices.Family{fam}, nil
		}
	}

	tag, err := language.Parse(lang)
	if err != nil {
		return nil, fmt.Errorf("unknown language %q: %w", lang, err)
	}
	base, _ := tag.Base()
	region, regionConf := tag.Region()

	var out []voices.Family
	for _, fam := range all {
		fb, _ := fam.Tag.Base()
		if fb != base {
			continue
		}
		if fr, _ := fam.Tag.Region(); regionConf == language.Exact && fr != region {
			continue
		}
		out = append(out, fam)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no voices for %q", lang)
	}
	return out, nil
}
