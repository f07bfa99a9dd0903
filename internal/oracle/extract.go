package oracle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hitoshi/nutrilog/internal/model"
)

// ExtractObject は自由文の応答から最初の整形式JSONオブジェクトを取り出す。
//
// 最初の '{' から文字列リテラルを考慮して括弧の対応を取り、閉じた範囲がJSONとして
// 解析できればそれを返す。解析できない、または閉じない場合は次の '{' から再試行する。
// 該当する範囲がなければmodel.ErrMalformedOracleResponseを返す。
func ExtractObject(text string) (json.RawMessage, error) {
	for start := strings.IndexByte(text, '{'); start >= 0; {
		if end, ok := matchBrace(text, start); ok {
			candidate := []byte(text[start : end+1])
			var obj map[string]json.RawMessage
			if json.Unmarshal(candidate, &obj) == nil {
				return json.RawMessage(candidate), nil
			}
		}

		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return nil, fmt.Errorf("%w: no JSON object in reply", model.ErrMalformedOracleResponse)
}

// matchBrace はtext[start]の '{' に対応する '}' の位置を返す。
func matchBrace(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// numberToken は数値トークン。3桁区切りのカンマを含むものを優先する。
var numberToken = regexp.MustCompile(`\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?`)

// FirstNumber は文中に最初に現れる数値を返す。見つからなければfalse。
func FirstNumber(text string) (float64, bool) {
	token := numberToken.FindString(text)
	if token == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(token, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Number は数値または数値文字列のどちらでも受け付けるJSON数値。
// 解析できない文字列やnullは0として扱う。
type Number float64

// UnmarshalJSON はjson.Unmarshalerを実装する。
func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*n = 0
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, ok := FirstNumber(s)
		if !ok {
			*n = 0
			return nil
		}
		if strings.HasPrefix(strings.TrimSpace(s), "-") {
			v = -v
		}
		*n = Number(v)
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		*n = 0
		return nil
	}
	*n = Number(f)
	return nil
}
