package transcoder

import (
	"strconv"
	"strings"
)

// The Xiino 3.4E tag set. Tags absent from this table are stripped: the
// element goes away and its children take its place. Tags in deletedTags
// go away children and all.
var allowedTags = map[string]bool{
	"A": true, "ADDRESS": true, "AREA": true, "B": true, "BASE": true,
	"BASEFONT": true, "BLINK": true, "BLOCKQUOTE": true, "BODY": true,
	"BR": true, "CAPTION": true, "CENTER": true, "CITE": true, "CODE": true,
	"DD": true, "DIR": true, "DIV": true, "DL": true, "DT": true,
	"FONT": true, "FORM": true, "FRAME": true, "FRAMESET": true,
	"H1": true, "H2": true, "H3": true, "H4": true, "H5": true, "H6": true,
	"HR": true, "I": true, "IMG": true,
	"INPUT": true, "ISINDEX": true, "KBD": true, "LI": true, "MAP": true,
	"MULTICOL": true, "NOBR": true, "NOFRAMES": true, "OL": true,
	"OPTION": true, "P": true, "PLAINTEXT": true, "PRE": true, "S": true,
	"SELECT": true, "SMALL": true, "STRIKE": true, "STRONG": true,
	"SUB": true, "SUP": true, "TABLE": true, "TD": true, "TH": true,
	"TITLE": true, "TR": true, "TT": true, "U": true, "UL": true,
	"VAR": true, "WBR": true, "XMP": true,
}

// deletedTags are removed with their entire subtree: active content the
// client cannot run, embedded media it cannot play, and head metadata
// other than TITLE and BASE.
var deletedTags = map[string]bool{
	"SCRIPT": true, "STYLE": true, "NOSCRIPT": true, "TEMPLATE": true,
	"APPLET": true, "EMBED": true, "OBJECT": true, "PARAM": true,
	"IFRAME": true, "AUDIO": true, "VIDEO": true, "SOURCE": true,
	"TRACK": true, "CANVAS": true, "SVG": true, "MATH": true,
	"LINK": true, "MARQUEE": true, "DIALOG": true,
}

// voidTags never get a closing tag on the wire.
var voidTags = map[string]bool{
	"AREA": true, "BASE": true, "BASEFONT": true, "BR": true, "FRAME": true,
	"HR": true, "IMG": true, "INPUT": true, "ISINDEX": true, "META": true,
	"WBR": true,
}

// attrKind classifies how an attribute's value is validated.
type attrKind int

const (
	attrFree attrKind = iota // any value passes
	attrEnum                 // value must be in the listed set
	attrNum                  // non-negative integer or percentage
	attrURL                  // resolved against base, scheme-checked
	attrFlag                 // boolean attribute, value ignored
)

type attrRule struct {
	kind attrKind
	enum map[string]bool
}

func enum(values ...string) attrRule {
	m := make(map[string]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return attrRule{kind: attrEnum, enum: m}
}

var (
	free = attrRule{kind: attrFree}
	num  = attrRule{kind: attrNum}
	urlA = attrRule{kind: attrURL}
	flag = attrRule{kind: attrFlag}

	alignLCR  = enum("LEFT", "CENTER", "RIGHT")
	valignSet = enum("TOP", "BOTTOM", "MIDDLE", "BASELINE")
)

// allowedAttrs maps TAG -> ATTR -> validation rule. Attributes not listed
// for their tag are dropped, as are listed attributes whose values fail
// validation.
var allowedAttrs = map[string]map[string]attrRule{
	"A":        {"HREF": urlA, "NAME": free, "TARGET": free},
	"AREA":     {"COORDS": free, "HREF": urlA, "SHAPE": enum("CIRCLE", "POLY", "POLYGON", "RECT"), "TARGET": free, "NOHREF": flag},
	"BASE":     {"HREF": urlA},
	"BASEFONT": {"SIZE": num, "COLOR": free},
	"BODY":     {"BGCOLOR": free, "TEXT": free, "LINK": free, "VLINK": free, "ALINK": free, "BACKGROUND": urlA},
	"BR":       {"CLEAR": enum("NONE", "LEFT", "RIGHT", "ALL")},
	"CAPTION":  {"ALIGN": enum("TOP", "BOTTOM", "LEFT", "RIGHT")},
	"DIV":      {"ALIGN": alignLCR},
	"DL":       {"COMPACT": flag},
	"FONT":     {"SIZE": free, "COLOR": free},
	"FORM":     {"METHOD": enum("GET", "POST"), "ACTION": urlA, "LOCAL": free},
	"FRAME":    {"SRC": urlA, "NAME": free},
	"FRAMESET": {"COLS": free, "ROWS": free},
	"H1":       {"ALIGN": alignLCR},
	"H2":       {"ALIGN": alignLCR},
	"H3":       {"ALIGN": alignLCR},
	"H4":       {"ALIGN": alignLCR},
	"H5":       {"ALIGN": alignLCR},
	"H6":       {"ALIGN": alignLCR},
	"HR":       {"SIZE": num, "WIDTH": num, "NOSHADE": flag, "ALIGN": alignLCR},
	"IMG": {
		"WIDTH": num, "HEIGHT": num, "BORDER": num, "HSPACE": num,
		"VSPACE": num, "ALIGN": enum("LEFT", "RIGHT", "TOP", "ABSMIDDLE", "ABSBOTTOM", "TEXTTOP", "MIDDLE", "BASELINE", "BOTTOM"),
		"ISMAP": flag, "USEMAP": free, "ALT": free, "SRC": urlA,
		"EBDWIDTH": num, "EBDHEIGHT": num,
	},
	"INPUT": {
		"NAME": free, "VALUE": free,
		"TYPE":      enum("SUBMIT", "RESET", "IMAGE", "BUTTON", "RADIO", "CHECKBOX", "HIDDEN", "PASSWORD", "TEXT"),
		"MAXLENGTH": num, "SIZE": num, "DISABLED": flag, "CHECKED": flag,
	},
	"ISINDEX":  {"PROMPT": free},
	"LI":       {"TYPE": enum("1", "A", "I", "DISC", "CIRCLE", "SQUARE"), "VALUE": num},
	"MAP":      {"NAME": free},
	"MULTICOL": {"COLS": num},
	"OL":       {"START": num, "TYPE": enum("1", "A", "I")},
	"OPTION":   {"VALUE": free, "SELECTED": flag},
	"P":        {"ALIGN": alignLCR},
	"SELECT":   {"MULTIPLE": flag, "NAME": free},
	"TABLE":    {"BORDER": num, "ALIGN": alignLCR, "BGCOLOR": free, "CELLPADDING": num, "CELLSPACING": num, "WIDTH": num, "BACKGROUND": urlA},
	"TD": {
		"COLSPAN": num, "ROWSPAN": num, "WIDTH": num, "HEIGHT": num,
		"NOWRAP": flag, "ALIGN": alignLCR, "VALIGN": valignSet, "BGCOLOR": free,
		"BACKGROUND": urlA,
	},
	"TH": {
		"COLSPAN": num, "ROWSPAN": num, "WIDTH": num, "HEIGHT": num,
		"NOWRAP": flag, "ALIGN": alignLCR, "VALIGN": valignSet, "BGCOLOR": free,
		"BACKGROUND": urlA,
	},
	"TR": {"ALIGN": alignLCR, "VALIGN": valignSet, "BGCOLOR": free},
	"UL": {"TYPE": enum("DISC", "CIRCLE", "SQUARE")},
}

// validNumeric accepts a non-negative integer, optionally a percentage.
func validNumeric(v string) bool {
	v = strings.TrimSpace(v)
	v = strings.TrimSuffix(v, "%")
	if v == "" {
		return false
	}
	n, err := strconv.Atoi(v)
	return err == nil && n >= 0
}
