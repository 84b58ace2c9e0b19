// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dispatch

import (
	"regexp"
	"strings"
)

// 土耳其语带音字符折叠表；İ/I 统一折叠为 i，保证比较不受大小写规则影响
var turkishFold = strings.NewReplacer(
	"ç", "c", "ğ", "g", "ı", "i", "ö", "o", "ş", "s", "ü", "u",
	"Ç", "c", "Ğ", "g", "İ", "i", "I", "i", "Ö", "o", "Ş", "s", "Ü", "u",
)

var (
	apostropheRe = regexp.MustCompile("[’´`]")
	nonWordRe    = regexp.MustCompile(`[^\p{L}\p{N}_\s']+`)
	spaceRe      = regexp.MustCompile(`\s+`)
	looseStripRe = regexp.MustCompile(`[^\p{L}\p{N}_]+`)
	tokenRe      = regexp.MustCompile(`[a-z0-9]+`)
)

// Normalize 相似度比较用的规范化：折叠带音字符、小写、非词字符转空格、压缩空白
// 先折叠再小写：strings.ToLower 会把 İ 变成 i+组合点，必须在折叠之后才安全
func Normalize(s string) string {
	s = turkishFold.Replace(s)
	s = strings.ToLower(s)
	s = apostropheRe.ReplaceAllString(s, "'")
	s = nonWordRe.ReplaceAllString(s, " ")
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// NormalizeLoose 子串包含判断用的规范化：在 Normalize 基础上再去掉所有空白与标点
func NormalizeLoose(s string) string {
	s = turkishFold.Replace(s)
	s = strings.ToLower(s)
	return looseStripRe.ReplaceAllString(s, "")
}

// Tokens 提取长度 >=2 的字母数字 token（折叠后）
func Tokens(s string) []string {
	s = turkishFold.Replace(s)
	s = strings.ToLower(s)
	all := tokenRe.FindAllString(s, -1)
	out := all[:0]
	for _, t := range all {
		if len(t) >= 2 {
			out = append(out, t)
		}
	}
	return out
}

// tokenSet 转集合
func tokenSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// TokenOverlap 计算 s 的 token 集合被 ref 覆盖的比例（|s ∩ ref| / |s|）
func TokenOverlap(ref, s string) float64 {
	refSet := tokenSet(Tokens(ref))
	sSet := tokenSet(Tokens(s))
	if len(sSet) == 0 {
		return 0
	}
	hit := 0
	for t := range sSet {
		if _, ok := refSet[t]; ok {
			hit++
		}
	}
	return float64(hit) / float64(len(sSet))
}
