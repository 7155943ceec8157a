// Package profile manages user profiles, their avatars, the active
// child/parent mode, and the per-profile star progress earned on
// flashcards. Everything is persisted as JSON documents in app state.
package profile

import (
	"fmt"
	"math/rand"
	"net/url"
)

// DefaultStyle is the avatar style used when none is chosen.
const DefaultStyle = "toon-head"

// styleTraits lists the allowed value per avatar part for one style.
// Values outside these lists are clamped by Sanitize.
type styleTraits struct {
	Beard           []string
	Clothes         []string
	ClothesColor    []string
	Hair            []string
	HairColor       []string
	Eyes            []string
	Mouth           []string
	RearHair        []string
	SkinColor       []string
	Eyebrows        []string
	Head            []string
	BackgroundColor []string
}

var styleProfiles = map[string]styleTraits{
	"toon-head": {
		Beard:           []string{"none", "chin", "chinMoustache", "fullBeard", "longBeard", "moustacheTwirl"},
		Clothes:         []string{"dress", "openJacket", "shirt", "tShirt", "turtleNeck"},
		ClothesColor:    []string{"545454", "b11f1f", "0b3286", "147f3c", "eab308", "731ac3", "ec4899", "f97316", "151613", "e8e9e6"},
		Hair:            []string{"none", "sideComed", "undercut", "spiky", "bun"},
		HairColor:       []string{"2c1b18", "a55728", "b58143", "d6b370", "724133", "151613", "545454"},
		Eyes:            []string{"happy", "wide", "bow", "humble", "wink"},
		Mouth:           []string{"laugh", "angry", "agape", "smile", "sad"},
		RearHair:        []string{"none", "longStraight", "longWavy", "neckHigh", "shoulderHigh"},
		SkinColor:       []string{"f1c3a5", "c68e7a", "b98e6a", "a36b4f", "5c3829"},
		Eyebrows:        []string{"raised", "angry", "happy", "sad", "neutral"},
		Head:            []string{"head"},
		BackgroundColor: []string{"b6e3f4", "c0aede", "d1d4f9", "ffd5dc", "ffdfbf", "a7ffc4", "e8f3a7"},
	},
	"adventurer": {
		Beard:           []string{"none"},
		Clothes:         []string{"blazerAndShirt", "hoodie", "shirtCrewNeck", "shirtVNeck"},
		ClothesColor:    []string{"1f2937", "3b82f6", "16a34a", "ca8a04", "b91c1c", "7c3aed"},
		Hair:            []string{"short01", "short05", "short10", "long01", "long08", "long15", "long22"},
		HairColor:       []string{"2c1b18", "724133", "a55728", "b58143", "d6b370"},
		Eyes:            []string{"variant01", "variant02", "variant03", "variant05", "variant08"},
		Mouth:           []string{"variant01", "variant02", "variant03", "variant05", "variant08"},
		RearHair:        []string{"none"},
		SkinColor:       []string{"f9c9b6", "f4b28b", "eaa17e", "d08b5b", "ae5d29", "614335"},
		Eyebrows:        []string{"default"},
		Head:            []string{"default"},
		BackgroundColor: []string{"b6e3f4", "c0aede", "d1d4f9", "ffd5dc", "ffdfbf", "a7ffc4", "e8f3a7"},
	},
	"personas": {
		Beard:           []string{"none", "beardMustache", "pyramid", "walrus", "goatee", "shadow", "soulPatch"},
		Clothes:         []string{"squared", "rounded", "small", "checkered"},
		ClothesColor:    []string{"262e33", "65c9ff", "5199e4", "25557c", "e6e6e6", "929598", "3c4f5c", "b1e2ff", "ffafb9"},
		Hair:            []string{"long", "sideShave", "shortCombover", "curlyHighTop", "bobCut", "curly", "pigtails", "buzzcut", "bald", "mohawk"},
		HairColor:       []string{"2c1b18", "724133", "a55728", "b58143", "d6b370", "ffffff"},
		Eyes:            []string{"open", "sleep", "wink", "glasses", "happy", "sunglasses"},
		Mouth:           []string{"smile", "frown", "surprise", "pacifier", "bigSmile", "smirk", "lips"},
		RearHair:        []string{"none"},
		SkinColor:       []string{"f2d3b1", "ecad80", "9e5622", "763900"},
		Eyebrows:        []string{"default"},
		Head:            []string{"smallRound"},
		BackgroundColor: []string{"b6e3f4", "c0aede", "d1d4f9", "ffd5dc", "ffdfbf", "a7ffc4", "e8f3a7"},
	},
}

// AvatarConfig describes one rendered avatar. Color fields hold bare
// hex values without the leading '#'.
type AvatarConfig struct {
	Style               string `json:"style"`
	Seed                string `json:"seed"`
	Beard               string `json:"beard"`
	Clothes             string `json:"clothes"`
	ClothesColor        string `json:"clothesColor"`
	Hair                string `json:"hair"`
	HairColor           string `json:"hairColor"`
	HairProbability     int    `json:"hairProbability"`
	Eyes                string `json:"eyes"`
	Mouth               string `json:"mouth"`
	RearHair            string `json:"rearHair"`
	RearHairProbability int    `json:"rearHairProbability"`
	SkinColor           string `json:"skinColor"`
	Eyebrows            string `json:"eyebrows"`
	Head                string `json:"head"`
	BackgroundColor     string `json:"backgroundColor"`
}

// AvatarStyles returns the available style names.
func AvatarStyles() []string {
	return []string{"toon-head", "adventurer", "personas"}
}

// TraitsByStyle exposes the allowed values per part for an editor UI.
// Unknown styles fall back to the default style.
func TraitsByStyle(style string) map[string][]string {
	t := traitsFor(style)
	return map[string][]string{
		"beard":           t.Beard,
		"clothes":         t.Clothes,
		"clothesColor":    t.ClothesColor,
		"hair":            t.Hair,
		"hairColor":       t.HairColor,
		"eyes":            t.Eyes,
		"mouth":           t.Mouth,
		"rearHair":        t.RearHair,
		"skinColor":       t.SkinColor,
		"eyebrows":        t.Eyebrows,
		"head":            t.Head,
		"backgroundColor": t.BackgroundColor,
	}
}

func traitsFor(style string) styleTraits {
	if t, ok := styleProfiles[style]; ok {
		return t
	}
	return styleProfiles[DefaultStyle]
}

func randomSeed(prefix string) string {
	if prefix == "" {
		prefix = "kid"
	}
	return fmt.Sprintf("%s-%08x", prefix, rand.Uint32())
}

// DefaultAvatar returns the first allowed value for every part, with a
// fresh random seed.
func DefaultAvatar(seedPrefix string) AvatarConfig {
	t := traitsFor(DefaultStyle)
	return AvatarConfig{
		Style:               DefaultStyle,
		Seed:                randomSeed(seedPrefix),
		Beard:               t.Beard[0],
		Clothes:             t.Clothes[0],
		ClothesColor:        t.ClothesColor[0],
		Hair:                t.Hair[0],
		HairColor:           t.HairColor[0],
		HairProbability:     100,
		Eyes:                t.Eyes[0],
		Mouth:               t.Mouth[0],
		RearHair:            t.RearHair[0],
		RearHairProbability: 50,
		SkinColor:           t.SkinColor[0],
		Eyebrows:            t.Eyebrows[0],
		Head:                t.Head[0],
		BackgroundColor:     t.BackgroundColor[0],
	}
}

// RandomAvatar rolls a random value for every part of the given style.
func RandomAvatar(seedPrefix, style string) AvatarConfig {
	if _, ok := styleProfiles[style]; !ok {
		style = DefaultStyle
	}
	t := traitsFor(style)
	pick := func(items []string) string { return items[rand.Intn(len(items))] }
	return AvatarConfig{
		Style:               style,
		Seed:                randomSeed(seedPrefix),
		Beard:               pick(t.Beard),
		Clothes:             pick(t.Clothes),
		ClothesColor:        pick(t.ClothesColor),
		Hair:                pick(t.Hair),
		HairColor:           pick(t.HairColor),
		HairProbability:     rand.Intn(101),
		Eyes:                pick(t.Eyes),
		Mouth:               pick(t.Mouth),
		RearHair:            pick(t.RearHair),
		RearHairProbability: rand.Intn(101),
		SkinColor:           pick(t.SkinColor),
		Eyebrows:            pick(t.Eyebrows),
		Head:                t.Head[0],
		BackgroundColor:     pick(t.BackgroundColor),
	}
}

func contains(items []string, v string) bool {
	for _, item := range items {
		if item == v {
			return true
		}
	}
	return false
}

func clampProbability(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Sanitize clamps an avatar loaded from storage to values the chosen
// style supports. The retired "avataaars" style maps to "personas".
func Sanitize(in AvatarConfig, seedPrefix string) AvatarConfig {
	def := DefaultAvatar(seedPrefix)

	style := in.Style
	if style == "avataaars" {
		style = "personas"
	}
	if _, ok := styleProfiles[style]; !ok {
		style = DefaultStyle
	}
	t := traitsFor(style)

	out := in
	out.Style = style
	if !contains(t.Beard, out.Beard) {
		out.Beard = t.Beard[0]
	}
	if !contains(t.Clothes, out.Clothes) {
		out.Clothes = t.Clothes[0]
	}
	if !contains(t.ClothesColor, out.ClothesColor) {
		out.ClothesColor = t.ClothesColor[0]
	}
	if !contains(t.Hair, out.Hair) {
		out.Hair = t.Hair[0]
	}
	if !contains(t.HairColor, out.HairColor) {
		out.HairColor = t.HairColor[0]
	}
	if !contains(t.Eyes, out.Eyes) {
		out.Eyes = t.Eyes[0]
	}
	if !contains(t.Mouth, out.Mouth) {
		out.Mouth = t.Mouth[0]
	}
	if !contains(t.RearHair, out.RearHair) {
		out.RearHair = t.RearHair[0]
	}
	if !contains(t.SkinColor, out.SkinColor) {
		out.SkinColor = t.SkinColor[0]
	}
	if !contains(t.Eyebrows, out.Eyebrows) {
		out.Eyebrows = t.Eyebrows[0]
	}
	if !contains(t.Head, out.Head) {
		out.Head = t.Head[0]
	}
	if !contains(t.BackgroundColor, out.BackgroundColor) {
		out.BackgroundColor = t.BackgroundColor[0]
	}
	out.HairProbability = clampProbability(out.HairProbability)
	out.RearHairProbability = clampProbability(out.RearHairProbability)
	if out.Seed == "" {
		out.Seed = def.Seed
	}
	return out
}

// AvatarURL renders a config as a DiceBear SVG URL.
func AvatarURL(config AvatarConfig) string {
	c := Sanitize(config, "kid")
	params := url.Values{}
	params.Set("seed", c.Seed)
	params.Set("radius", "18")
	params.Set("backgroundColor", c.BackgroundColor)

	switch c.Style {
	case "adventurer":
		params.Set("hair", c.Hair)
		params.Set("eyes", c.Eyes)
		params.Set("mouth", c.Mouth)
		params.Set("skinColor", c.SkinColor)
		params.Set("hairColor", c.HairColor)
	case "personas":
		params.Set("hair", c.Hair)
		params.Set("eyes", c.Eyes)
		params.Set("mouth", c.Mouth)
		params.Set("skinColor", c.SkinColor)
		params.Set("hairColor", c.HairColor)
		params.Set("nose", c.Head)
		params.Set("body", c.Clothes)
		params.Set("clothingColor", c.ClothesColor)
		if c.Beard != "none" {
			params.Set("facialHair", c.Beard)
			params.Set("facialHairProbability", "100")
		} else {
			params.Set("facialHairProbability", "0")
		}
	default:
		if c.Beard == "none" {
			params.Set("beardProbability", "0")
		} else {
			params.Set("beard", c.Beard)
			params.Set("beardProbability", "100")
		}
		params.Set("clothes", c.Clothes)
		params.Set("clothesColor", c.ClothesColor)
		if c.Hair != "none" {
			params.Set("hair", c.Hair)
			params.Set("hairProbability", "100")
		} else {
			params.Set("hairProbability", "0")
		}
		params.Set("hairColor", c.HairColor)
		params.Set("head", c.Head)
		params.Set("eyes", c.Eyes)
		params.Set("mouth", c.Mouth)
		params.Set("eyebrows", c.Eyebrows)
		if c.RearHair != "none" {
			params.Set("rearHair", c.RearHair)
			params.Set("rearHairProbability", "100")
		} else {
			params.Set("rearHairProbability", "0")
		}
		params.Set("skinColor", c.SkinColor)
	}

	return fmt.Sprintf("https://api.dicebear.com/9.x/%s/svg?%s", c.Style, params.Encode())
}
