package evaluator

import (
	"strings"
	"sync"

	"github.com/goodsign/monday"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	xnumber "golang.org/x/text/number"
)

// DefaultDateFormat is the layout used to print dates.
const DefaultDateFormat = "02 Jan 2006"

// decimalSeparators caches the decimal separator per culture.
var decimalSeparators sync.Map // language.Tag -> string

// decimalSeparator returns the decimal separator of a culture.
func decimalSeparator(tag language.Tag) string {
	if tag == language.Und {
		return "."
	}
	if sep, ok := decimalSeparators.Load(tag); ok {
		return sep.(string)
	}
	s := message.NewPrinter(tag).Sprintf("%v", xnumber.Decimal(1.5))
	sep := strings.TrimSuffix(strings.TrimPrefix(s, "1"), "5")
	if sep == "" {
		sep = "."
	}
	actual, _ := decimalSeparators.LoadOrStore(tag, sep)
	return actual.(string)
}

var mondayLocales = map[string]monday.Locale{
	"en":    monday.LocaleEnUS,
	"en-GB": monday.LocaleEnGB,
	"de":    monday.LocaleDeDE,
	"fr":    monday.LocaleFrFR,
	"fr-CA": monday.LocaleFrCA,
	"es":    monday.LocaleEsES,
	"it":    monday.LocaleItIT,
	"pt":    monday.LocalePtPT,
	"pt-BR": monday.LocalePtBR,
	"nl":    monday.LocaleNlNL,
	"nl-BE": monday.LocaleNlBE,
	"ru":    monday.LocaleRuRU,
	"pl":    monday.LocalePlPL,
	"cs":    monday.LocaleCsCZ,
	"da":    monday.LocaleDaDK,
	"fi":    monday.LocaleFiFI,
	"sv":    monday.LocaleSvSE,
	"nb":    monday.LocaleNbNO,
	"ja":    monday.LocaleJaJP,
	"zh":    monday.LocaleZhCN,
	"zh-TW": monday.LocaleZhTW,
	"ko":    monday.LocaleKoKR,
	"tr":    monday.LocaleTrTR,
	"uk":    monday.LocaleUkUA,
	"el":    monday.LocaleElGR,
	"ro":    monday.LocaleRoRO,
	"hu":    monday.LocaleHuHU,
}

// mondayLocale maps a culture to a date locale, trying the full tag, then
// language and region, then the language alone.
func mondayLocale(tag language.Tag) monday.Locale {
	if loc, ok := mondayLocales[tag.String()]; ok {
		return loc
	}
	base, _ := tag.Base()
	if region, conf := tag.Region(); conf != language.No {
		if loc, ok := mondayLocales[base.String()+"-"+region.String()]; ok {
			return loc
		}
	}
	if loc, ok := mondayLocales[base.String()]; ok {
		return loc
	}
	return monday.LocaleEnUS
}
