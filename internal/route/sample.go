package route

// SampleRoute is the built-in demo route on the Upper East Side, Manhattan.
func SampleRoute() Route {
	return Route{
		C(-73.957618, 40.776143),
		C(-73.957939, 40.776281),
		C(-73.959469, 40.77693),
		C(-73.959649, 40.777006),
		C(-73.961166, 40.777636),
		C(-73.960701, 40.778272),
		C(-73.959824, 40.777904),
		C(-73.959189, 40.777637),
		C(-73.959649, 40.777006),
		C(-73.960115, 40.776368),
		C(-73.960606, 40.775689),
		C(-73.961107, 40.774999),
		C(-73.96093, 40.774925),
		C(-73.960267, 40.774645),
		C(-73.959397, 40.77428),
		C(-73.959854, 40.773656),
		C(-73.960321, 40.773016),
		C(-73.959191, 40.77254),
	}
}

// SampleStops are the bins along SampleRoute. The last one is the dump site.
func SampleStops() []Stop {
	return []Stop{
		{ID: "bin-1", Name: "bin #1", Location: C(-73.9599, 40.7778)},
		{ID: "bin-2", Name: "bin #2", Location: C(-73.9603, 40.7746)},
		{ID: "dump", Name: "bin #3 (dump)", Location: C(-73.959, 40.7728)},
	}
}
