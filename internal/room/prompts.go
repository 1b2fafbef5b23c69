package room

// DefaultPrompts is the catalog of movie descriptions players act out in emoji.
var DefaultPrompts = []string{
	"A young wizard discovers he has magical powers and attends a school for wizards",
	"A group of friends journey to destroy a powerful ring",
	"A superhero in a metal suit fights villains with advanced technology",
	"A police officer is trapped in a building with terrorists during Christmas",
	"Two star-crossed lovers from feuding families fall in love and meet a tragic end",
	"A giant shark terrorizes a beach town",
	"A criminal mastermind places people in deadly traps to test their will to live",
	"A computer hacker discovers that reality is a simulation created by machines",
	"A group of dinosaurs are brought back to life in a theme park",
	"A man with a rare condition ages backwards",
	"An alien stranded on Earth befriends a young boy",
	"A nanny with magical powers helps a troubled family",
	"A team of thieves enter people's dreams to steal their secrets",
	"A man builds a baseball field on his farm to attract the ghosts of baseball legends",
	"A man lives the same day over and over again",
	"An archaeologist searches for religious artifacts while fighting Nazis",
	"Two toys compete for the affection of their owner",
	"A robot garbage collector finds love in a post-apocalyptic Earth",
	"A woman falls in love with an artificial intelligence operating system",
	"A team of superheroes tries to save the universe from a powerful villain",
}
