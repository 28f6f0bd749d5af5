package camera

// Easing functions remap normalized shot progress before the curve is
// sampled. Names match the scene schema's camera.ease field; unknown names
// land on smooth so a typo in a payload softens motion instead of breaking it.
//
//	linear   constant speed
//	easeIn   accelerates from rest
//	easeOut  decelerates to rest
//	smooth   classic smoothstep (alias easeInOut)
//	fastIn   jumps off the line, long glide out
//	fastOut  slow wind-up, rushed exit
func ease(kind string, t float64) float64 {
	switch kind {
	case "linear":
		return t
	case "easeIn":
		return t * t
	case "easeOut":
		return t * (2 - t)
	case "smooth", "easeInOut":
		return t * t * (3 - 2*t)
	case "fastIn":
		u := 1 - t
		return 1 - u*u*u
	case "fastOut":
		return t * t * t
	default:
		return t * t * (3 - 2*t)
	}
}
